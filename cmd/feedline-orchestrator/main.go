// Feedline Orchestrator — ведёт entries от приёма до финального статуса.
//
// Orchestrator:
//   - Получает delegation jobs и отправляет готовые tasks правилам
//   - Получает результаты tasks и продвигает entry
//   - Выставляет финальный статус и уведомляет подписчиков
//   - По расписанию подбирает зависшие tasks и entries (reaper)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Feedline/internal/config"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/notify"
	"github.com/shaiso/Feedline/internal/orchestrator"
	"github.com/shaiso/Feedline/internal/repo"
	"github.com/shaiso/Feedline/internal/rules"
	"github.com/shaiso/Feedline/internal/scheduler"
	"github.com/shaiso/Feedline/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("info", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting feedline-orchestrator")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Правила нужны только для категорий и имён очередей.
	registry, err := rules.BuildRegistry(cfg.Rules, http.DefaultClient, cfg.RuleTimeout)
	if err != nil {
		logger.Error("failed to build rules", "error", err)
		os.Exit(1)
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	ruleQueues := make([]mq.Queue, 0, registry.Count())
	for _, r := range registry.Rules() {
		ruleQueues = append(ruleQueues, mq.QueueNameFor(r.Category(), r.Name()))
	}
	if err := mq.DeclareQueues(ctx, mqConn, append(mq.StaticQueues(), ruleQueues...)...); err != nil {
		logger.Error("failed to declare queues", "error", err)
		os.Exit(1)
	}

	// Уведомления: webhook, с Redis — не больше одного на entry.
	var notifier notify.Notifier = notify.NewWebhookNotifier(nil, cfg.NotifyTimeout)
	if cfg.RedisURL != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis not available, notifications are not deduplicated", "error", err)
		} else {
			defer rdb.Close()
			notifier = notify.NewOnceNotifier(notifier, notify.NewRedisGuard(rdb), 0)
			logger.Info("Redis connected")
		}
	}

	entries := repo.NewEntryRepo(pool)
	orch := orchestrator.New(orchestrator.Config{
		Channel:      mq.NewAMQPChannel(mqConn, logger),
		Entries:      entries,
		Tasks:        repo.NewTaskRepo(pool),
		Findings:     repo.NewFindingRepo(pool),
		Notifier:     notifier,
		CategoryOf:   registry.Category,
		MaxRetries:   cfg.MaxRetries,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Reaper: только на экземпляре, который держит advisory lock.
	sched := scheduler.New(scheduler.Config{
		Lock:   repo.NewAdvisoryLock(pool, repo.ReaperLockKey),
		Logger: logger,
	})
	err = sched.Add("reaper", cfg.ReaperSchedule, func(ctx context.Context) error {
		stats, err := orch.ReapStale(ctx, cfg.StaleAfter)
		if stats != (orchestrator.ReapStats{}) {
			logger.Info("reaper pass",
				"tasks_failed", stats.TasksFailed,
				"entries_delegated", stats.EntriesDelegated,
				"entries_advanced", stats.EntriesAdvanced,
			)
		}
		return err
	})
	if err != nil {
		logger.Error("failed to schedule reaper", "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			http.Error(w, "rabbitmq disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.OrchPort

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sched.Stop()
	orch.Stop()
	logger.Info("feedline-orchestrator stopped")
}
