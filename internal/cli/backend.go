package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/config"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/orchestrator"
	"github.com/shaiso/Feedline/internal/repo"
	"github.com/shaiso/Feedline/internal/repo/memstore"
	"github.com/shaiso/Feedline/internal/rules"
	"github.com/shaiso/Feedline/internal/storage"
	"github.com/shaiso/Feedline/internal/worker"
)

// maxSettleRounds — ограничение на число проходов Settle.
const maxSettleRounds = 100

// EntryReader читает entries.
type EntryReader interface {
	GetByPublicID(ctx context.Context, publicID string) (*domain.Entry, error)
}

// TaskLister читает tasks entry.
type TaskLister interface {
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]domain.Task, error)
}

// FindingLister читает findings entry.
type FindingLister interface {
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]domain.Finding, error)
}

// ReportReader читает report по Task.ResultRef.
type ReportReader interface {
	Get(ctx context.Context, ref string) (*domain.Report, error)
}

// Backend — всё, с чем работают команды CLI.
type Backend struct {
	Orchestrator *orchestrator.Orchestrator
	Rules        *rules.Registry
	Entries      EntryReader
	Tasks        TaskLister
	Findings     FindingLister

	// Reports не задан, если хранение report'ов выключено.
	Reports ReportReader

	// Worker задан только в локальном режиме: Settle прогоняет pipeline в процессе.
	Worker *worker.Worker

	closers []func()
}

// Local reports whether the pipeline runs in-process.
func (b *Backend) Local() bool {
	return b.Worker != nil
}

// Settle в локальном режиме обрабатывает очереди, пока они не опустеют.
// В обычном режиме ничего не делает: очереди обрабатывают сервисы.
func (b *Backend) Settle(ctx context.Context) error {
	if !b.Local() {
		return nil
	}
	for range maxSettleRounds {
		n1, err := b.Orchestrator.Drain(ctx)
		if err != nil {
			return err
		}
		n2, err := b.Worker.Drain(ctx)
		if err != nil {
			return err
		}
		if n1+n2 == 0 {
			return nil
		}
	}
	return fmt.Errorf("pipeline did not settle after %d rounds", maxSettleRounds)
}

// Close освобождает соединения.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// NewLocalBackend собирает pipeline в памяти: memstore, MemoryChannel
// и worker в том же процессе.
func NewLocalBackend(registry *rules.Registry, maxRetries int, logger *slog.Logger) *Backend {
	store := memstore.New()
	channel := mq.NewMemoryChannel()

	orch := orchestrator.New(orchestrator.Config{
		Channel:    channel,
		Entries:    store.Entries,
		Tasks:      store.Tasks,
		Findings:   store.Findings,
		CategoryOf: registry.Category,
		MaxRetries: maxRetries,
		Logger:     logger,
	})
	w := worker.New(worker.Config{
		Channel:    channel,
		Rules:      registry,
		Entries:    store.Entries,
		Tasks:      store.Tasks,
		Findings:   store.Findings,
		Reports:    store.Reports,
		MaxRetries: maxRetries,
		Logger:     logger,
	})

	return &Backend{
		Orchestrator: orch,
		Rules:        registry,
		Entries:      store.Entries,
		Tasks:        store.Tasks,
		Findings:     store.Findings,
		Reports:      store.Reports,
		Worker:       w,
	}
}

// OpenBackend подключается к БД и RabbitMQ по cfg.
// С local=true собирает pipeline в памяти.
func OpenBackend(ctx context.Context, cfg *config.Config, local bool, logger *slog.Logger) (*Backend, error) {
	client := &http.Client{Timeout: cfg.RuleTimeout}
	registry, err := rules.BuildRegistry(cfg.Rules, client, cfg.RuleTimeout)
	if err != nil {
		return nil, fmt.Errorf("build rules: %w", err)
	}

	if local {
		return NewLocalBackend(registry, cfg.MaxRetries, logger), nil
	}

	b := &Backend{Rules: registry}

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	b.closers = append(b.closers, pool.Close)

	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	b.closers = append(b.closers, func() { conn.Close() })

	entries := repo.NewEntryRepo(pool)
	tasks := repo.NewTaskRepo(pool)
	findingRepo := repo.NewFindingRepo(pool)

	b.Entries = entries
	b.Tasks = tasks
	b.Findings = findingRepo

	if cfg.Minio.Endpoint != "" {
		reports, err := storage.NewReportStore(storage.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Secure:    cfg.Minio.Secure,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("create report store: %w", err)
		}
		b.Reports = reports
	}

	b.Orchestrator = orchestrator.New(orchestrator.Config{
		Channel:    mq.NewAMQPChannel(conn, logger),
		Entries:    entries,
		Tasks:      tasks,
		Findings:   findingRepo,
		CategoryOf: registry.Category,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return b, nil
}
