package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/rules"
)

// Default configuration values.
const (
	defaultPollInterval = 5 * time.Second
)

// EntryReader читает entries.
type EntryReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Entry, error)
}

// TaskStore — операции с tasks, нужные воркеру.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Transition(ctx context.Context, id uuid.UUID, from []domain.TaskStatus, to domain.TaskStatus, at time.Time) (bool, error)
	Finish(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg, resultRef string, at time.Time) (bool, error)
}

// FindingAppender сохраняет findings.
type FindingAppender interface {
	Append(ctx context.Context, findings []domain.Finding) error
}

// ReportStore сохраняет report task и возвращает ссылку на него.
type ReportStore interface {
	Put(ctx context.Context, publicID, taskName string, report *domain.Report) (string, error)
}

// Worker выполняет правила.
//
// На каждое правило из реестра запускается свой Loop над очередью
// rules.<category>.<rule>. Результат task публикуется в tasks.results.
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут читать одни и те же очереди.
type Worker struct {
	channel  mq.Channel
	rules    *rules.Registry
	entries  EntryReader
	tasks    TaskStore
	findings FindingAppender
	reports  ReportStore

	maxRetries   int
	pollInterval time.Duration

	loops []*Loop

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Channel  mq.Channel
	Rules    *rules.Registry
	Entries  EntryReader
	Tasks    TaskStore
	Findings FindingAppender

	// Reports — хранилище report'ов (опционально).
	Reports ReportStore

	// MaxRetries — bound для публикуемых TaskResult (default: domain.DefaultMaxRetries).
	MaxRetries int

	// PollInterval — пауза между опросами пустой очереди (default: 5s).
	PollInterval time.Duration

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		channel:      cfg.Channel,
		rules:        cfg.Rules,
		entries:      cfg.Entries,
		tasks:        cfg.Tasks,
		findings:     cfg.Findings,
		reports:      cfg.Reports,
		maxRetries:   maxRetries,
		pollInterval: pollInterval,
		logger:       logger,
	}

	for _, rule := range cfg.Rules.Rules() {
		queue := mq.QueueNameFor(rule.Category(), rule.Name())
		w.loops = append(w.loops, NewLoop(w.channel, queue, w.handleJob, w.handleExhausted, logger))
	}

	return w
}

// Queues возвращает очереди, которые читает Worker.
func (w *Worker) Queues() []mq.Queue {
	queues := make([]mq.Queue, len(w.loops))
	for i, l := range w.loops {
		queues[i] = l.Queue()
	}
	return queues
}

// Start запускает Loop на каждую очередь правила.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"rules", w.rules.Names(),
	)

	for _, l := range w.loops {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			l.Run(ctx, w.pollInterval)
		}()
	}

	w.logger.Info("worker started", "queues", len(w.loops))
	return nil
}

// Drain один раз вычитывает все очереди правил.
// Возвращает количество обработанных сообщений.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	total := 0
	for _, l := range w.loops {
		n, err := l.Drain(ctx)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Stop останавливает Worker и ждёт завершения текущих сообщений.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
