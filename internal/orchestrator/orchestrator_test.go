package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/delegator"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/findings"
	"github.com/shaiso/Feedline/internal/jobs"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/repo/memstore"
	"github.com/shaiso/Feedline/internal/rules"
	"github.com/shaiso/Feedline/internal/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu       sync.Mutex
	notified []string
	statuses []domain.Status
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, entry *domain.Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, entry.PublicID)
	n.statuses = append(n.statuses, entry.Status)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notified)
}

// noop — правило, которое ничего не находит.
func noop(_ context.Context, _ *domain.Entry, _ jobs.Configuration, task *domain.Task) (*domain.Report, error) {
	return domain.NewReport(task.Name), nil
}

type harness struct {
	store    *memstore.Store
	channel  *mq.MemoryChannel
	registry *rules.Registry
	notifier *recordingNotifier
	orch     *Orchestrator
}

func newHarness(t *testing.T, extra ...rules.Rule) *harness {
	t.Helper()

	registry := rules.NewRegistry(
		rules.NewValidatorRule("gtfs.canonical", "gtfs", rules.ValidatorFunc(noop)),
		rules.NewValidatorRule("gtfs.package", "gtfs", rules.ValidatorFunc(noop)),
		rules.NewConverterRule("gtfs2netex", "gtfs", "netex", rules.ConverterFunc(noop)),
	)
	for _, r := range extra {
		registry.Register(r)
	}

	h := &harness{
		store:    memstore.New(),
		channel:  mq.NewMemoryChannel(),
		registry: registry,
		notifier: &recordingNotifier{},
	}
	h.orch = New(Config{
		Channel:    h.channel,
		Entries:    h.store.Entries,
		Tasks:      h.store.Tasks,
		Findings:   h.store.Findings,
		Notifier:   h.notifier,
		CategoryOf: registry.Category,
		MaxRetries: 3,
		Logger:     quietLogger(),
	})
	return h
}

func (h *harness) submit(t *testing.T, names ...string) *domain.Entry {
	t.Helper()
	specs := make([]delegator.TaskSpec, len(names))
	for i, n := range names {
		specs[i] = delegator.TaskSpec{Name: n}
	}
	entry, err := h.orch.Submit(context.Background(), Submission{
		Format: "GTFS",
		URL:    "http://feeds.local/feed.zip",
		Tasks:  specs,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return entry
}

func (h *harness) tasks(t *testing.T, entryID uuid.UUID) map[string]domain.Task {
	t.Helper()
	list, err := h.store.Tasks.ListByEntry(context.Background(), entryID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	out := make(map[string]domain.Task, len(list))
	for _, task := range list {
		out[task.Name] = task
	}
	return out
}

func (h *harness) entryStatus(t *testing.T, id uuid.UUID) domain.Status {
	t.Helper()
	entry, err := h.store.Entries.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	return entry.Status
}

// finishTask завершает task так, как это делает worker.
func (h *harness) finishTask(t *testing.T, entry *domain.Entry, task domain.Task, status domain.TaskStatus, found ...domain.Finding) {
	t.Helper()
	ctx := context.Background()

	if err := h.store.Findings.Append(ctx, found); err != nil {
		t.Fatalf("append findings: %v", err)
	}
	if _, err := h.store.Tasks.Finish(ctx, task.ID, status, "", "", time.Now()); err != nil {
		t.Fatalf("finish task: %v", err)
	}

	outcome := jobs.OutcomeCompleted
	if status == domain.TaskStatusFailed {
		outcome = jobs.OutcomeFailed
	}
	msg, _ := mq.NewMessage(mq.MessageTypeTaskResult, jobs.TaskResult{
		EntryID:  entry.ID,
		PublicID: entry.PublicID,
		TaskID:   task.ID,
		TaskName: task.Name,
		Outcome:  outcome,
	}, domain.NewRetry(3))
	if err := h.channel.Send(ctx, mq.QueueResults, msg); err != nil {
		t.Fatalf("send result: %v", err)
	}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	if _, err := h.orch.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func queueOf(category domain.Category, name string) mq.Queue {
	return mq.QueueNameFor(category, name)
}

// --- Submit Tests ---

func TestSubmit_CreatesEntryAndDelegates(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t, "gtfs2netex", "gtfs.canonical", "gtfs.package")

	if entry.Status != domain.StatusReceived || entry.Format != "gtfs" || entry.PublicID == "" {
		t.Errorf("unexpected entry %+v", entry)
	}

	tasks := h.tasks(t, entry.ID)
	want := map[string]int{"gtfs.canonical": 100, "gtfs.package": 101, "gtfs2netex": 200}
	for name, priority := range want {
		task, ok := tasks[name]
		if !ok {
			t.Fatalf("task %s not created", name)
		}
		if task.Priority != priority || task.Status != domain.TaskStatusPending {
			t.Errorf("task %s: priority=%d status=%s", name, task.Priority, task.Status)
		}
	}

	if h.channel.Len(mq.QueueDelegation) != 1 {
		t.Errorf("expected one delegation job, got %d", h.channel.Len(mq.QueueDelegation))
	}
}

func TestSubmit_Invalid(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
	}{
		{"no format", Submission{URL: "http://x"}},
		{"no url", Submission{Format: "gtfs"}},
		{"unknown rule", Submission{Format: "gtfs", URL: "http://x", Tasks: []delegator.TaskSpec{{Name: "nope"}}}},
		{"duplicate task", Submission{Format: "gtfs", URL: "http://x", Tasks: []delegator.TaskSpec{{Name: "gtfs.canonical"}, {Name: "gtfs.canonical"}}}},
		{"bad configuration", Submission{Format: "gtfs", URL: "http://x", Tasks: []delegator.TaskSpec{{Name: "gtfs.canonical", Configuration: []byte(`[1,2]`)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.orch.Submit(context.Background(), tt.sub)
			if !errors.Is(err, ErrInvalidSubmission) {
				t.Errorf("expected ErrInvalidSubmission, got %v", err)
			}
			if h.channel.Len(mq.QueueDelegation) != 0 {
				t.Error("nothing should be delegated")
			}
		})
	}
}

func TestSubmit_WithoutTasksFinishesImmediately(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t)
	h.drain(t)

	if got := h.entryStatus(t, entry.ID); got != domain.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", got)
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", h.notifier.count())
	}
}

// --- Delegation Tests ---

func TestHandleDelegation_ValidationsBeforeConversions(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t, "gtfs.canonical", "gtfs.package", "gtfs2netex")
	h.drain(t)

	if got := h.entryStatus(t, entry.ID); got != domain.StatusProcessing {
		t.Errorf("expected PROCESSING, got %s", got)
	}

	tasks := h.tasks(t, entry.ID)
	if tasks["gtfs.canonical"].Status != domain.TaskStatusQueued || tasks["gtfs.package"].Status != domain.TaskStatusQueued {
		t.Errorf("validations should be queued: %+v", tasks)
	}
	if tasks["gtfs2netex"].Status != domain.TaskStatusPending {
		t.Errorf("conversion must wait for validations, got %s", tasks["gtfs2netex"].Status)
	}

	if h.channel.Len(queueOf(domain.CategoryValidation, "gtfs.canonical")) != 1 {
		t.Error("expected job for gtfs.canonical")
	}
	if h.channel.Len(queueOf(domain.CategoryConversion, "gtfs2netex")) != 0 {
		t.Error("conversion must not be dispatched yet")
	}

	// Job несёт данные task
	msgs, _ := h.channel.Peek(queueOf(domain.CategoryValidation, "gtfs.package"))
	job, err := mq.ParsePayload[jobs.RuleJob](msgs[0])
	if err != nil {
		t.Fatalf("parse job: %v", err)
	}
	if job.TaskID != tasks["gtfs.package"].ID || job.PublicID != entry.PublicID || msgs[0].Type != mq.MessageTypeValidation {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestHandleDelegation_RedeliveryDoesNotDispatchTwice(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t, "gtfs.canonical")
	h.drain(t)

	// Повторный DelegationJob
	h.orch.delegate(context.Background(), entry)
	h.drain(t)

	if n := h.channel.Len(queueOf(domain.CategoryValidation, "gtfs.canonical")); n != 1 {
		t.Errorf("expected exactly one job, got %d", n)
	}
}

func TestHandleDelegation_ConfigurationTravelsWithJob(t *testing.T) {
	h := newHarness(t)
	entry, err := h.orch.Submit(context.Background(), Submission{
		Format: "gtfs",
		URL:    "http://feeds.local/feed.zip",
		Tasks: []delegator.TaskSpec{{
			Name:          "gtfs.canonical",
			Configuration: []byte(`{"type":"gtfs.canonical","body":{"k":"v"}}`),
		}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.drain(t)

	msgs, _ := h.channel.Peek(queueOf(domain.CategoryValidation, "gtfs.canonical"))
	if len(msgs) != 1 {
		t.Fatalf("expected one job, got %d", len(msgs))
	}
	job, _ := mq.ParsePayload[jobs.RuleJob](msgs[0])
	if job.EntryID != entry.ID || job.Configuration == nil || job.Configuration.Type != "gtfs.canonical" {
		t.Errorf("configuration lost: %+v", job.Configuration)
	}
}

func TestHandleDelegation_SendFailureRevertsTask(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t, "gtfs.canonical")

	failing := &failingChannel{MemoryChannel: h.channel, failQueue: queueOf(domain.CategoryValidation, "gtfs.canonical")}
	h.orch.channel = failing

	msgs, _ := h.channel.Peek(mq.QueueDelegation)
	err := h.orch.HandleDelegation(context.Background(), msgs[0])
	if !worker.IsRecoverable(err) {
		t.Fatalf("expected recoverable error, got %v", err)
	}
	if task := h.tasks(t, entry.ID)["gtfs.canonical"]; task.Status != domain.TaskStatusPending {
		t.Errorf("task should be back in PENDING, got %s", task.Status)
	}
}

func TestHandleDelegation_UnknownEntry(t *testing.T) {
	h := newHarness(t)
	msg, _ := mq.NewMessage(mq.MessageTypeDelegation, jobs.DelegationJob{EntryID: uuid.New()}, domain.NewRetry(3))

	err := h.orch.HandleDelegation(context.Background(), msg)
	if !errors.Is(err, ErrEntryNotFound) || worker.IsRecoverable(err) {
		t.Errorf("expected non-recoverable ErrEntryNotFound, got %v", err)
	}
}

func TestDelegationExhausted_FailsEntry(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t, "gtfs.canonical")

	// Сообщение, у которого попытки уже исчерпаны
	for d := range h.channel.Receive(context.Background(), mq.QueueDelegation) {
		h.channel.Delete(context.Background(), mq.QueueDelegation, d.Handle)
	}
	msg, _ := mq.NewMessage(mq.MessageTypeDelegation, jobs.DelegationJob{EntryID: entry.ID, PublicID: entry.PublicID}, domain.Retry{TryNumber: 4, MaxRetries: 3})
	h.channel.Send(context.Background(), mq.QueueDelegation, msg)

	h.drain(t)

	if got := h.entryStatus(t, entry.ID); got != domain.StatusFailed {
		t.Errorf("expected FAILED, got %s", got)
	}
	if h.channel.Len(mq.QueueDLQ) != 1 {
		t.Errorf("expected message in DLQ, got %d", h.channel.Len(mq.QueueDLQ))
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", h.notifier.count())
	}
}

// --- Task Result Tests ---

func TestHandleTaskResult_DispatchesConversionAfterValidations(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t, "gtfs.canonical", "gtfs.package", "gtfs2netex")
	h.drain(t)

	tasks := h.tasks(t, entry.ID)
	conversionQueue := queueOf(domain.CategoryConversion, "gtfs2netex")

	h.finishTask(t, entry, tasks["gtfs.canonical"], domain.TaskStatusCompleted)
	h.drain(t)
	if h.channel.Len(conversionQueue) != 0 {
		t.Fatal("conversion dispatched while a validation is still running")
	}

	h.finishTask(t, entry, tasks["gtfs.package"], domain.TaskStatusCompleted)
	h.drain(t)
	if h.channel.Len(conversionQueue) != 1 {
		t.Fatalf("expected conversion job, got %d", h.channel.Len(conversionQueue))
	}
	if got := h.entryStatus(t, entry.ID); got != domain.StatusProcessing {
		t.Errorf("entry must stay PROCESSING until conversion finishes, got %s", got)
	}
}

func TestHandleTaskResult_FinalStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.TaskStatus
		severity domain.Severity
		code     string
		want     domain.Status
	}{
		{"clean", domain.TaskStatusCompleted, "", "", domain.StatusSuccess},
		{"warning", domain.TaskStatusCompleted, domain.SeverityWarning, "missing_shape", domain.StatusWarnings},
		{"error", domain.TaskStatusCompleted, domain.SeverityError, "missing_stop", domain.StatusErrors},
		{"system error downgraded", domain.TaskStatusCompleted, domain.SeverityError, findings.CodeURLConnection, domain.StatusWarnings},
		{"abandoned", domain.TaskStatusFailed, domain.SeverityWarning, "missing_shape", domain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			entry := h.submit(t, "gtfs.canonical")
			h.drain(t)

			task := h.tasks(t, entry.ID)["gtfs.canonical"]
			var found []domain.Finding
			if tt.code != "" {
				found = append(found, rules.NewFinding(task.Name, entry, &task, "feed", tt.code, "msg", tt.severity))
			}
			h.finishTask(t, entry, task, tt.status, found...)
			h.drain(t)

			if got := h.entryStatus(t, entry.ID); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if h.notifier.count() != 1 || h.notifier.statuses[0] != tt.want {
				t.Errorf("expected one notification with %s, got %v", tt.want, h.notifier.statuses)
			}
		})
	}
}

func TestHandleTaskResult_NotifiesOnce(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t, "gtfs.canonical", "gtfs.package")
	h.drain(t)

	tasks := h.tasks(t, entry.ID)
	h.finishTask(t, entry, tasks["gtfs.canonical"], domain.TaskStatusCompleted)
	h.finishTask(t, entry, tasks["gtfs.package"], domain.TaskStatusCompleted)
	// Повторная доставка одного из результатов
	h.finishTask(t, entry, tasks["gtfs.package"], domain.TaskStatusCompleted)
	h.drain(t)

	if h.notifier.count() != 1 {
		t.Errorf("expected exactly one notification, got %d", h.notifier.count())
	}
	if got := h.entryStatus(t, entry.ID); got != domain.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", got)
	}
}

func TestHandleTaskResult_NotifierFailureKeepsStatus(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("webhook down")
	entry := h.submit(t, "gtfs.canonical")
	h.drain(t)

	h.finishTask(t, entry, h.tasks(t, entry.ID)["gtfs.canonical"], domain.TaskStatusCompleted)
	h.drain(t)

	if got := h.entryStatus(t, entry.ID); got != domain.StatusSuccess {
		t.Errorf("notification failure must not change status, got %s", got)
	}
	if h.channel.Len(mq.QueueResults) != 0 {
		t.Error("result must not be requeued because of notification failure")
	}
}

func TestFinish_ConcurrentWritersNotifyOnce(t *testing.T) {
	h := newHarness(t)
	entry := h.submit(t)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := *entry
			h.orch.finish(context.Background(), &e, domain.StatusSuccess)
		}()
	}
	wg.Wait()

	if h.notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", h.notifier.count())
	}
}

// --- End-to-end Tests ---

func TestPipeline_EndToEnd(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string, sev domain.Severity) rules.ValidatorFunc {
		return func(_ context.Context, entry *domain.Entry, _ jobs.Configuration, task *domain.Task) (*domain.Report, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			report := domain.NewReport(task.Name)
			if sev != "" {
				report.AddFinding(rules.NewFinding(name, entry, task, "stops.txt", "stop_too_far", "stop 42", sev))
			}
			return report, nil
		}
	}

	h := newHarness(t,
		rules.NewValidatorRule("gtfs.canonical", "gtfs", record("gtfs.canonical", domain.SeverityWarning)),
		rules.NewConverterRule("gtfs2netex", "gtfs", "netex", rules.ConverterFunc(record("gtfs2netex", ""))),
	)
	w := worker.New(worker.Config{
		Channel:    h.channel,
		Rules:      h.registry,
		Entries:    h.store.Entries,
		Tasks:      h.store.Tasks,
		Findings:   h.store.Findings,
		MaxRetries: 3,
		Logger:     quietLogger(),
	})

	entry := h.submit(t, "gtfs2netex", "gtfs.canonical")

	for range 10 {
		n1, _ := h.orch.Drain(context.Background())
		n2, _ := w.Drain(context.Background())
		if n1+n2 == 0 {
			break
		}
	}

	if got := h.entryStatus(t, entry.ID); got != domain.StatusWarnings {
		t.Errorf("expected WARNINGS, got %s", got)
	}
	if len(order) != 2 || order[0] != "gtfs.canonical" || order[1] != "gtfs2netex" {
		t.Errorf("expected validation before conversion, got %v", order)
	}
	for name, task := range h.tasks(t, entry.ID) {
		if task.Status != domain.TaskStatusCompleted {
			t.Errorf("task %s: expected COMPLETED, got %s", name, task.Status)
		}
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", h.notifier.count())
	}
}

func TestPipeline_AlwaysRecoverableFailsEntry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	flaky := func(_ context.Context, _ *domain.Entry, _ jobs.Configuration, _ *domain.Task) (*domain.Report, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, rules.Infrastructure("feed host unreachable")
	}

	h := newHarness(t, rules.NewValidatorRule("gtfs.canonical", "gtfs", rules.ValidatorFunc(flaky)))
	w := worker.New(worker.Config{
		Channel:    h.channel,
		Rules:      h.registry,
		Entries:    h.store.Entries,
		Tasks:      h.store.Tasks,
		Findings:   h.store.Findings,
		MaxRetries: 3,
		Logger:     quietLogger(),
	})

	entry := h.submit(t, "gtfs.canonical")

	settled := false
	for range 50 {
		n1, _ := h.orch.Drain(context.Background())
		n2, _ := w.Drain(context.Background())
		if n1+n2 == 0 {
			settled = true
			break
		}
	}
	if !settled {
		t.Fatal("pipeline did not settle")
	}

	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	task := h.tasks(t, entry.ID)["gtfs.canonical"]
	if task.Status != domain.TaskStatusFailed || task.Error == "" {
		t.Errorf("expected FAILED task with reason, got %+v", task)
	}
	if got := h.entryStatus(t, entry.ID); got != domain.StatusFailed {
		t.Errorf("expected FAILED entry, got %s", got)
	}
	if n := h.channel.Len(mq.QueueDLQ); n != 1 {
		t.Errorf("expected 1 message in DLQ, got %d", n)
	}
	if h.notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", h.notifier.count())
	}
}

// --- Reaper Tests ---

func seedStale(t *testing.T, h *harness, entryStatus domain.Status, taskStatus domain.TaskStatus) (*domain.Entry, domain.Task) {
	t.Helper()
	old := time.Now().Add(-time.Hour)
	entry := &domain.Entry{
		ID:        uuid.New(),
		PublicID:  "stale-" + uuid.NewString()[:8],
		Format:    "gtfs",
		URL:       "http://feeds.local/feed.zip",
		Status:    entryStatus,
		CreatedAt: old,
	}
	task := domain.Task{
		ID:        uuid.New(),
		EntryID:   entry.ID,
		Name:      "gtfs.canonical",
		Category:  domain.CategoryValidation,
		Priority:  100,
		Status:    taskStatus,
		CreatedAt: old,
	}
	if err := h.store.Entries.Create(context.Background(), entry, []domain.Task{task}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return entry, task
}

func TestReapStale_AbandonsStuckTasks(t *testing.T) {
	h := newHarness(t)
	entry, task := seedStale(t, h, domain.StatusProcessing, domain.TaskStatusRunning)

	stats, err := h.orch.ReapStale(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if stats.TasksFailed != 1 || stats.EntriesAdvanced != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	stored, _ := h.store.Tasks.GetByID(context.Background(), task.ID)
	if stored.Status != domain.TaskStatusFailed || stored.Error == "" {
		t.Errorf("expected FAILED with reason, got %+v", stored)
	}
	if got := h.entryStatus(t, entry.ID); got != domain.StatusFailed {
		t.Errorf("expected FAILED entry, got %s", got)
	}
	if h.channel.Len(mq.QueueResults) != 1 {
		t.Errorf("expected failed result published, got %d", h.channel.Len(mq.QueueResults))
	}

	// Опубликованный результат не меняет уже финальную entry
	h.drain(t)
	if h.notifier.count() != 1 {
		t.Errorf("expected one notification, got %d", h.notifier.count())
	}
}

func TestReapStale_RedelegatesReceivedEntries(t *testing.T) {
	h := newHarness(t)
	entry, _ := seedStale(t, h, domain.StatusReceived, domain.TaskStatusPending)

	stats, err := h.orch.ReapStale(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if stats.EntriesDelegated != 1 || stats.TasksFailed != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	h.drain(t)
	if got := h.entryStatus(t, entry.ID); got != domain.StatusProcessing {
		t.Errorf("expected PROCESSING after delegation, got %s", got)
	}
}

func TestReapStale_IgnoresFreshWork(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "gtfs.canonical")
	h.drain(t)

	stats, err := h.orch.ReapStale(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if stats != (ReapStats{}) {
		t.Errorf("fresh work must not be reaped: %+v", stats)
	}
}

// failingChannel не принимает сообщения для одной очереди.
type failingChannel struct {
	*mq.MemoryChannel
	failQueue mq.Queue
}

func (c *failingChannel) Send(ctx context.Context, queue mq.Queue, msg *mq.Message) error {
	if queue == c.failQueue {
		return errors.New("broker unavailable")
	}
	return c.MemoryChannel.Send(ctx, queue, msg)
}
