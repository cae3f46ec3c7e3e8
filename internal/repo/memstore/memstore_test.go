package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/repo"
)

func seed(t *testing.T, s *Store) (*domain.Entry, []domain.Task) {
	t.Helper()
	now := time.Now()
	entry := &domain.Entry{ID: uuid.New(), PublicID: "pub-1", Format: "gtfs", Status: domain.StatusReceived, CreatedAt: now}
	tasks := []domain.Task{
		{ID: uuid.New(), Name: "b", Priority: 101, Status: domain.TaskStatusPending, CreatedAt: now},
		{ID: uuid.New(), Name: "a", Priority: 100, Status: domain.TaskStatusPending, CreatedAt: now},
	}
	if err := s.Entries.Create(context.Background(), entry, tasks); err != nil {
		t.Fatalf("create: %v", err)
	}
	return entry, tasks
}

func TestEntryStore_CreateDuplicate(t *testing.T) {
	s := New()
	entry, _ := seed(t, s)

	dup := *entry
	dup.ID = uuid.New()
	if err := s.Entries.Create(context.Background(), &dup, nil); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := s.Entries.GetByID(context.Background(), uuid.New()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEntryStore_CompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	entry, _ := seed(t, s)
	now := time.Now()

	ok, _ := s.Entries.CompareAndSetStatus(ctx, entry.ID, []domain.Status{domain.StatusReceived}, domain.StatusProcessing, now)
	if !ok {
		t.Fatal("first transition should win")
	}

	// Два финализатора: выигрывает только первый
	from := []domain.Status{domain.StatusProcessing}
	first, _ := s.Entries.CompareAndSetStatus(ctx, entry.ID, from, domain.StatusSuccess, now)
	second, _ := s.Entries.CompareAndSetStatus(ctx, entry.ID, from, domain.StatusErrors, now)
	if !first || second {
		t.Errorf("expected first writer to win, got %v %v", first, second)
	}

	got, _ := s.Entries.GetByPublicID(ctx, "pub-1")
	if got.Status != domain.StatusSuccess || got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestEntryStore_CompareAndSetStatus_RejectsBackwardMoves(t *testing.T) {
	ctx := context.Background()
	s := New()
	entry, _ := seed(t, s)
	now := time.Now()

	tests := []struct {
		name string
		from []domain.Status
		to   domain.Status
	}{
		{"back to received", []domain.Status{domain.StatusProcessing}, domain.StatusReceived},
		{"out of terminal", []domain.Status{domain.StatusSuccess}, domain.StatusErrors},
		{"processing to processing", []domain.Status{domain.StatusProcessing}, domain.StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.Entries.CompareAndSetStatus(ctx, entry.ID, tt.from, tt.to, now)
			if ok || !errors.Is(err, repo.ErrInvalidState) {
				t.Errorf("expected ErrInvalidState, got ok=%v err=%v", ok, err)
			}
		})
	}

	// Допустимые статусы из from остаются
	ok, err := s.Entries.CompareAndSetStatus(ctx, entry.ID, []domain.Status{domain.StatusSuccess, domain.StatusReceived}, domain.StatusFailed, now)
	if !ok || err != nil {
		t.Errorf("RECEIVED → FAILED should be allowed, got ok=%v err=%v", ok, err)
	}
}

func TestTaskStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	entry, tasks := seed(t, s)

	list, _ := s.Tasks.ListByEntry(ctx, entry.ID)
	if len(list) != 2 || list[0].Name != "a" {
		t.Fatalf("expected tasks ordered by priority, got %+v", list)
	}

	id := tasks[0].ID
	if ok, _ := s.Tasks.Transition(ctx, id, []domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusQueued, time.Now()); !ok {
		t.Fatal("PENDING → QUEUED should succeed")
	}
	if ok, _ := s.Tasks.Transition(ctx, id, []domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusQueued, time.Now()); ok {
		t.Error("second PENDING → QUEUED should fail")
	}

	if ok, _ := s.Tasks.Finish(ctx, id, domain.TaskStatusCompleted, "", "s3://r", time.Now()); !ok {
		t.Fatal("finish should succeed")
	}
	if ok, _ := s.Tasks.Finish(ctx, id, domain.TaskStatusFailed, "late", "", time.Now()); ok {
		t.Error("finished task must not change")
	}
	if _, err := s.Tasks.Finish(ctx, id, domain.TaskStatusRunning, "", "", time.Now()); !errors.Is(err, repo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	task, _ := s.Tasks.GetByID(ctx, id)
	if task.Status != domain.TaskStatusCompleted || task.ResultRef != "s3://r" {
		t.Errorf("unexpected task: %+v", task)
	}
}

func TestTaskStore_ListStale(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, tasks := seed(t, s)
	past := time.Now().Add(-time.Hour)

	s.Tasks.Transition(ctx, tasks[0].ID, []domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusQueued, past)
	s.Tasks.Transition(ctx, tasks[1].ID, []domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusQueued, time.Now())

	stale, _ := s.Tasks.ListStale(ctx, time.Now().Add(-time.Minute), 10)
	if len(stale) != 1 || stale[0].ID != tasks[0].ID {
		t.Errorf("expected one stale task, got %+v", stale)
	}
}

func TestFindingStore_Order(t *testing.T) {
	ctx := context.Background()
	s := New()
	entryID, taskID := uuid.New(), uuid.New()

	f1 := domain.Finding{ID: uuid.New(), EntryID: entryID, TaskID: taskID, Code: "1"}
	f2 := domain.Finding{ID: uuid.New(), EntryID: entryID, TaskID: taskID, Code: "2"}
	s.Findings.Append(ctx, []domain.Finding{f1, f2})
	s.Findings.Append(ctx, []domain.Finding{f1})

	got, _ := s.Findings.ListByTask(ctx, taskID)
	if len(got) != 2 || got[0].Code != "1" || got[1].Code != "2" {
		t.Errorf("unexpected findings: %+v", got)
	}
}

// --- ReportStore Tests ---

func TestReportStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	report := domain.NewReport("gtfs.canonical")
	report.AddFinding(domain.Finding{Code: "missing_stop_name", Severity: domain.SeverityWarning})

	ref, err := s.Reports.Put(ctx, "feed-1", "gtfs.canonical", report)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != "memory://entries/feed-1/tasks/gtfs.canonical/report.json" {
		t.Errorf("unexpected ref %q", ref)
	}

	got, err := s.Reports.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RuleName != "gtfs.canonical" || len(got.Findings) != 1 {
		t.Errorf("unexpected report %+v", got)
	}

	if _, err := s.Reports.Get(ctx, "memory://entries/missing/report.json"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
