// Package memstore — хранилище entries, tasks, findings и reports в памяти.
//
// Повторяет контракт pgx-репозиториев из пакета repo (те же методы и
// ошибки). Используется в тестах и в локальном режиме CLI.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/repo"
)

// Store — общее состояние репозиториев и reports.
type Store struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*domain.Entry
	tasks    map[uuid.UUID]*domain.Task
	findings []domain.Finding

	Entries  *EntryStore
	Tasks    *TaskStore
	Findings *FindingStore
	Reports  *ReportStore
}

// New создаёт пустое хранилище.
func New() *Store {
	s := &Store{
		entries: make(map[uuid.UUID]*domain.Entry),
		tasks:   make(map[uuid.UUID]*domain.Task),
	}
	s.Entries = &EntryStore{s: s}
	s.Tasks = &TaskStore{s: s}
	s.Findings = &FindingStore{s: s}
	s.Reports = &ReportStore{objects: make(map[string][]byte)}
	return s
}

// EntryStore — аналог repo.EntryRepo.
type EntryStore struct {
	s *Store
}

// Create сохраняет entry и tasks.
func (e *EntryStore) Create(_ context.Context, entry *domain.Entry, tasks []domain.Task) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	for _, existing := range e.s.entries {
		if existing.PublicID == entry.PublicID {
			return fmt.Errorf("%w: entry %s", repo.ErrAlreadyExists, entry.PublicID)
		}
	}

	stored := *entry
	stored.Tasks = nil
	e.s.entries[entry.ID] = &stored

	for _, t := range tasks {
		t.EntryID = entry.ID
		t.UpdatedAt = t.CreatedAt
		e.s.tasks[t.ID] = &t
	}
	return nil
}

// GetByID возвращает копию entry.
func (e *EntryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Entry, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	entry, ok := e.s.entries[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *entry
	return &out, nil
}

// GetByPublicID возвращает копию entry по публичному идентификатору.
func (e *EntryStore) GetByPublicID(_ context.Context, publicID string) (*domain.Entry, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	for _, entry := range e.s.entries {
		if entry.PublicID == publicID {
			out := *entry
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

// ListByStatus возвращает entries в статусе, созданные раньше before.
func (e *EntryStore) ListByStatus(_ context.Context, status domain.Status, before time.Time, limit int) ([]domain.Entry, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	var out []domain.Entry
	for _, entry := range e.s.entries {
		if entry.Status == status && entry.CreatedAt.Before(before) {
			out = append(out, *entry)
		}
	}
	slices.SortFunc(out, func(a, b domain.Entry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CompareAndSetStatus — аналог repo.EntryRepo.CompareAndSetStatus.
func (e *EntryStore) CompareAndSetStatus(_ context.Context, id uuid.UUID, from []domain.Status, to domain.Status, at time.Time) (bool, error) {
	from, err := repo.AllowedFrom(from, to)
	if err != nil {
		return false, err
	}

	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	entry, ok := e.s.entries[id]
	if !ok || !slices.Contains(from, entry.Status) {
		return false, nil
	}

	entry.Status = to
	if to == domain.StatusProcessing && entry.StartedAt == nil {
		entry.StartedAt = &at
	}
	if to.IsTerminal() {
		entry.CompletedAt = &at
	}
	return true, nil
}

// TaskStore — аналог repo.TaskRepo.
type TaskStore struct {
	s *Store
}

// GetByID возвращает копию task.
func (t *TaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	task, ok := t.s.tasks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	out := *task
	return &out, nil
}

// ListByEntry возвращает tasks entry по возрастанию priority.
func (t *TaskStore) ListByEntry(_ context.Context, entryID uuid.UUID) ([]domain.Task, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var out []domain.Task
	for _, task := range t.s.tasks {
		if task.EntryID == entryID {
			out = append(out, *task)
		}
	}
	slices.SortFunc(out, func(a, b domain.Task) int { return a.Priority - b.Priority })
	return out, nil
}

// ListStale возвращает QUEUED и RUNNING tasks, не менявшиеся с before.
func (t *TaskStore) ListStale(_ context.Context, before time.Time, limit int) ([]domain.Task, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var out []domain.Task
	for _, task := range t.s.tasks {
		active := task.Status == domain.TaskStatusQueued || task.Status == domain.TaskStatusRunning
		if active && task.UpdatedAt.Before(before) {
			out = append(out, *task)
		}
	}
	slices.SortFunc(out, func(a, b domain.Task) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transition — аналог repo.TaskRepo.Transition.
func (t *TaskStore) Transition(_ context.Context, id uuid.UUID, from []domain.TaskStatus, to domain.TaskStatus, at time.Time) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	task, ok := t.s.tasks[id]
	if !ok || !slices.Contains(from, task.Status) {
		return false, nil
	}

	task.Status = to
	task.UpdatedAt = at
	if to == domain.TaskStatusRunning {
		task.StartedAt = &at
	}
	return true, nil
}

// Finish — аналог repo.TaskRepo.Finish.
func (t *TaskStore) Finish(_ context.Context, id uuid.UUID, status domain.TaskStatus, errMsg, resultRef string, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is not terminal", repo.ErrInvalidState, status)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	task, ok := t.s.tasks[id]
	if !ok || task.Status.IsTerminal() {
		return false, nil
	}

	task.Status = status
	task.Error = errMsg
	if resultRef != "" {
		task.ResultRef = resultRef
	}
	task.UpdatedAt = at
	task.CompletedAt = &at
	return true, nil
}

// FindingStore — аналог repo.FindingRepo.
type FindingStore struct {
	s *Store
}

// Append добавляет findings; повторный ID игнорируется.
func (f *FindingStore) Append(_ context.Context, findings []domain.Finding) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	for _, finding := range findings {
		if slices.ContainsFunc(f.s.findings, func(x domain.Finding) bool { return x.ID == finding.ID }) {
			continue
		}
		f.s.findings = append(f.s.findings, finding)
	}
	return nil
}

// ListByTask возвращает findings task в порядке вставки.
func (f *FindingStore) ListByTask(_ context.Context, taskID uuid.UUID) ([]domain.Finding, error) {
	return f.filter(func(x domain.Finding) bool { return x.TaskID == taskID }), nil
}

// ListByEntry возвращает findings entry в порядке вставки.
func (f *FindingStore) ListByEntry(_ context.Context, entryID uuid.UUID) ([]domain.Finding, error) {
	return f.filter(func(x domain.Finding) bool { return x.EntryID == entryID }), nil
}

func (f *FindingStore) filter(keep func(domain.Finding) bool) []domain.Finding {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	var out []domain.Finding
	for _, finding := range f.s.findings {
		if keep(finding) {
			out = append(out, finding)
		}
	}
	return out
}
