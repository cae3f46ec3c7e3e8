package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/repo"
)

const reportScheme = "memory://"

// ReportStore — аналог storage.ReportStore: report хранится как JSON.
type ReportStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// Put сохраняет report и возвращает ссылку для Task.ResultRef.
func (r *ReportStore) Put(_ context.Context, publicID, taskName string, report *domain.Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := "entries/" + publicID + "/tasks/" + taskName + "/report.json"

	r.mu.Lock()
	r.objects[key] = data
	r.mu.Unlock()

	return reportScheme + key, nil
}

// Get читает report по ссылке.
func (r *ReportStore) Get(_ context.Context, ref string) (*domain.Report, error) {
	key, ok := strings.CutPrefix(ref, reportScheme)
	if !ok {
		return nil, fmt.Errorf("%w: report %q", repo.ErrNotFound, ref)
	}

	r.mu.Lock()
	data, ok := r.objects[key]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: report %q", repo.ErrNotFound, ref)
	}

	var report domain.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &report, nil
}
