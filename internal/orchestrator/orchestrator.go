package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/delegator"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/worker"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// EntryStore — операции с entries, нужные оркестратору.
type EntryStore interface {
	Create(ctx context.Context, entry *domain.Entry, tasks []domain.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Entry, error)
	ListByStatus(ctx context.Context, status domain.Status, before time.Time, limit int) ([]domain.Entry, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status, at time.Time) (bool, error)
}

// TaskStore — операции с tasks, нужные оркестратору.
type TaskStore interface {
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]domain.Task, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Task, error)
	Transition(ctx context.Context, id uuid.UUID, from []domain.TaskStatus, to domain.TaskStatus, at time.Time) (bool, error)
	Finish(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg, resultRef string, at time.Time) (bool, error)
}

// FindingReader читает findings entry.
type FindingReader interface {
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]domain.Finding, error)
}

// Notifier сообщает внешним системам о завершении entry.
type Notifier interface {
	Notify(ctx context.Context, entry *domain.Entry) error
}

// Orchestrator ведёт entries от создания до финального статуса.
//
// Читает две очереди:
//   - entries.delegation — DelegationJob, первая отправка tasks
//   - tasks.results — TaskResult от workers
//
// Состояние хранится только в БД, поэтому экземпляров может быть несколько.
type Orchestrator struct {
	channel    mq.Channel
	entries    EntryStore
	tasks      TaskStore
	findings   FindingReader
	notifier   Notifier
	categoryOf delegator.CategoryFunc

	maxRetries   int
	pollInterval time.Duration
	batchSize    int

	delegation *worker.Loop
	results    *worker.Loop

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	Channel  mq.Channel
	Entries  EntryStore
	Tasks    TaskStore
	Findings FindingReader

	// Notifier — уведомление о завершении entry (опционально).
	Notifier Notifier

	// CategoryOf — категория правила по имени (обычно rules.Registry.Category).
	CategoryOf delegator.CategoryFunc

	// MaxRetries — bound для отправляемых jobs (default: domain.DefaultMaxRetries).
	MaxRetries int

	PollInterval time.Duration // интервал опроса очередей (default: 10s)
	BatchSize    int           // количество записей за один проход reaper (default: 100)

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		channel:      cfg.Channel,
		entries:      cfg.Entries,
		tasks:        cfg.Tasks,
		findings:     cfg.Findings,
		notifier:     cfg.Notifier,
		categoryOf:   cfg.CategoryOf,
		maxRetries:   maxRetries,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}

	o.delegation = worker.NewLoop(cfg.Channel, mq.QueueDelegation, o.HandleDelegation, o.handleDelegationExhausted, logger)
	o.results = worker.NewLoop(cfg.Channel, mq.QueueResults, o.HandleTaskResult, o.handleResultExhausted, logger)

	return o
}

// Start запускает циклы delegation и results.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
	)

	for _, l := range []*worker.Loop{o.delegation, o.results} {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			l.Run(ctx, o.pollInterval)
		}()
	}

	o.logger.Info("orchestrator started")
	return nil
}

// Drain один раз вычитывает delegation и results, пока обе очереди не опустеют.
// Возвращает количество обработанных сообщений.
func (o *Orchestrator) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n1, err := o.delegation.Drain(ctx)
		total += n1
		if err != nil {
			return total, err
		}
		n2, err := o.results.Drain(ctx)
		total += n2
		if err != nil {
			return total, err
		}
		if n1+n2 == 0 || ctx.Err() != nil {
			return total, nil
		}
	}
}

// Stop останавливает Orchestrator.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}
