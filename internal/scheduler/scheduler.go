package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job — периодическая задача.
type Job func(ctx context.Context) error

// Locker — leader election между экземплярами.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Scheduler запускает Jobs по cron-расписанию.
//
// Если задан Locker, Job выполняется только на лидере:
// остальные экземпляры пропускают тик.
type Scheduler struct {
	cron    *cron.Cron
	lock    Locker
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

// Config — конфигурация Scheduler.
type Config struct {
	// Lock — leader election (опционально, без него Job выполняется всегда).
	Lock Locker

	// Timeout — ограничение на один запуск Job (default: 5m).
	Timeout time.Duration

	// Location — timezone расписаний (default: UTC).
	Location *time.Location

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser), cron.WithLocation(loc)),
		lock:    cfg.Lock,
		logger:  logger,
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Add регистрирует Job с именем name по расписанию spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if err := ValidateCronExpr(spec); err != nil {
		return err
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.Tick(ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.logger.Info("scheduled job", "job", name, "schedule", spec)
	return nil
}

// Tick выполняет один запуск Job, если этот экземпляр — лидер.
// Возвращает true, если Job был выполнен.
func (s *Scheduler) Tick(ctx context.Context, name string, job Job) bool {
	if ctx.Err() != nil {
		return false
	}

	if s.lock != nil {
		leader, err := s.lock.TryLock(ctx)
		if err != nil {
			s.logger.Error("leader election failed", "job", name, "error", err)
			return false
		}
		if !leader {
			s.logger.Debug("not a leader, skipping tick", "job", name)
			return false
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("scheduled job failed",
			"job", name,
			"duration", time.Since(started),
			"error", err,
		)
		return true
	}

	s.logger.Debug("scheduled job completed", "job", name, "duration", time.Since(started))
	return true
}

// Start запускает расписание. Jobs получают ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop останавливает расписание, ждёт текущие Jobs и снимает лидерство.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if started {
		<-s.cron.Stop().Done()
	}

	if s.lock != nil {
		if err := s.lock.Unlock(context.Background()); err != nil {
			s.logger.Warn("failed to release leadership", "error", err)
		}
	}

	s.logger.Info("scheduler stopped")
}
