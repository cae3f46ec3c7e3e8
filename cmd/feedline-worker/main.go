// Feedline Worker — выполняет правила над entries.
//
// Worker:
//   - Читает очередь каждого зарегистрированного правила
//   - Выполняет правило и сохраняет findings
//   - Повторяет упавшие попытки через requeue, после лимита — DLQ
//   - Отправляет результат task оркестратору
//
// Workers масштабируются горизонтально.
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
	"github.com/shaiso/Feedline/internal/repo"
	"github.com/shaiso/Feedline/internal/rules"
	"github.com/shaiso/Feedline/internal/storage"
	"github.com/shaiso/Feedline/internal/telemetry"
	"github.com/shaiso/Feedline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("info", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting feedline-worker")

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

	// Правила
	client := &http.Client{Timeout: cfg.RuleTimeout}
	registry, err := rules.BuildRegistry(cfg.Rules, client, cfg.RuleTimeout)
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
	queues := append(mq.StaticQueues(), ruleQueues...)
	if err := mq.DeclareQueues(ctx, mqConn, queues...); err != nil {
		logger.Error("failed to declare queues", "error", err)
		os.Exit(1)
	}
	logger.Debug("topology declared", "topology", mq.TopologyInfo(ruleQueues))

	// MinIO (опционально)
	var reports worker.ReportStore
	if cfg.Minio.Endpoint != "" {
		store, err := storage.NewReportStore(storage.Config{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Secure:    cfg.Minio.Secure,
		})
		if err != nil {
			logger.Error("failed to create report store", "error", err)
			os.Exit(1)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn("report bucket not available, reports will not be stored", "error", err)
		} else {
			reports = store
			logger.Info("report store ready", "bucket", cfg.Minio.Bucket)
		}
	}

	w := worker.New(worker.Config{
		Channel:      mq.NewAMQPChannel(mqConn, logger),
		Rules:        registry,
		Entries:      repo.NewEntryRepo(pool),
		Tasks:        repo.NewTaskRepo(pool),
		Findings:     repo.NewFindingRepo(pool),
		Reports:      reports,
		MaxRetries:   cfg.MaxRetries,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

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

	port := ":" + cfg.WorkerPort

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("feedline-worker stopped")
}
