package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Feedline/internal/domain"
)

// defaultTimeout — ограничение на один webhook.
const defaultTimeout = 10 * time.Second

// Notifier сообщает о завершении entry.
type Notifier interface {
	Notify(ctx context.Context, entry *domain.Entry) error
}

// Event — тело webhook.
type Event struct {
	PublicID    string        `json:"public_id"`
	Status      domain.Status `json:"status"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// WebhookNotifier отправляет Event на каждый адрес entry.
type WebhookNotifier struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhookNotifier создаёт WebhookNotifier.
// client == nil — http.DefaultClient, timeout <= 0 — 10s.
func NewWebhookNotifier(client *http.Client, timeout time.Duration) *WebhookNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WebhookNotifier{client: client, timeout: timeout}
}

// Notify отправляет Event на все адреса. Ошибка одного адреса
// не мешает остальным.
func (n *WebhookNotifier) Notify(ctx context.Context, entry *domain.Entry) error {
	if len(entry.Notifications) == 0 {
		return nil
	}

	body, err := json.Marshal(Event{
		PublicID:    entry.PublicID,
		Status:      entry.Status,
		CompletedAt: entry.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var errs []error
	for _, url := range entry.Notifications {
		if err := n.post(ctx, url, body); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
