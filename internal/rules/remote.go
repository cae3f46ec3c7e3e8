package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/jobs"
)

const (
	defaultRemoteTimeout = 5 * time.Minute

	// CodeRejectedInput — сервис правила отклонил входные данные (HTTP 4xx).
	CodeRejectedInput = "rejected_input"
)

// Remote — доменная логика правила во внешнем HTTP-сервисе.
//
// Реализует и Validator, и Converter: правило POST'ит entry, имя task
// и конфигурацию на Endpoint и получает report.
//
// Ответы:
//   - 2xx — report (findings, outputs, artifacts)
//   - 4xx — DataError с кодом rejected_input
//   - 5xx, сетевые ошибки, битый JSON — ErrInfrastructure
type Remote struct {
	Endpoint string
	Client   *http.Client
	Timeout  time.Duration
}

// NewRemote создаёт Remote для endpoint.
func NewRemote(endpoint string) *Remote {
	return &Remote{
		Endpoint: endpoint,
		Client:   &http.Client{},
		Timeout:  defaultRemoteTimeout,
	}
}

// remoteRequest — тело запроса к сервису правила.
type remoteRequest struct {
	PublicID      string             `json:"public_id"`
	Format        string             `json:"format"`
	URL           string             `json:"url"`
	Etag          string             `json:"etag,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	Task          string             `json:"task"`
	Configuration jobs.Configuration `json:"configuration,omitempty"`
}

// remoteFinding — finding в ответе сервиса правила.
type remoteFinding struct {
	Source   string          `json:"source"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Severity string          `json:"severity"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// remoteResponse — тело успешного ответа сервиса правила.
type remoteResponse struct {
	Findings  []remoteFinding   `json:"findings"`
	Outputs   map[string]any    `json:"outputs"`
	Artifacts map[string]string `json:"artifacts"`
}

// Validate вызывает сервис валидации.
func (r *Remote) Validate(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error) {
	return r.call(ctx, entry, cfg, task)
}

// Convert вызывает сервис конвертации.
func (r *Remote) Convert(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error) {
	return r.call(ctx, entry, cfg, task)
}

func (r *Remote) call(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(remoteRequest{
		PublicID:      entry.PublicID,
		Format:        entry.Format,
		URL:           entry.URL,
		Etag:          entry.Etag,
		Metadata:      entry.Metadata,
		Task:          task.Name,
		Configuration: cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, Infrastructure("%s: %v", task.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Infrastructure("%s: read response: %v", task.Name, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, Infrastructure("%s: HTTP %d: %s", task.Name, resp.StatusCode, truncate(string(respBody), 200))
	case resp.StatusCode >= 400:
		return nil, NewDataError(CodeRejectedInput,
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, Infrastructure("%s: decode response: %v", task.Name, err)
	}

	report := domain.NewReport(task.Name)
	for _, f := range parsed.Findings {
		finding := NewFinding(task.Name, entry, task, f.Source, f.Code, f.Message, domain.ParseSeverity(f.Severity))
		finding.Raw = f.Raw
		report.AddFinding(finding)
	}
	if parsed.Outputs != nil {
		report.Outputs = parsed.Outputs
	}
	report.Artifacts = parsed.Artifacts

	return report, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
