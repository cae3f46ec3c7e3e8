package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки сообщения (label outcome).
const (
	OutcomeSuccess   = "success"
	OutcomeRequeued  = "requeued"
	OutcomeExhausted = "exhausted"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

var (
	// MessagesProcessed — обработанные сообщения по очереди и исходу.
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedline",
		Name:      "messages_processed_total",
		Help:      "Messages taken from a queue, by outcome.",
	}, []string{"queue", "outcome"})

	// DeleteFailures — ошибки подтверждения сообщений.
	DeleteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedline",
		Name:      "message_delete_failures_total",
		Help:      "Failed message deletions.",
	}, []string{"queue"})

	// RuleDuration — время выполнения правил.
	RuleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "feedline",
		Name:      "rule_duration_seconds",
		Help:      "Rule execution time.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"rule"})

	// FindingsRecorded — сохранённые findings по сырой severity.
	FindingsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedline",
		Name:      "findings_recorded_total",
		Help:      "Findings stored, by rule and raw severity.",
	}, []string{"rule", "severity"})

	// EntriesFinished — entries, получившие финальный статус.
	EntriesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedline",
		Name:      "entries_finished_total",
		Help:      "Entries that reached a terminal status.",
	}, []string{"status"})

	// TasksReaped — зависшие tasks, брошенные reaper'ом.
	TasksReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feedline",
		Name:      "tasks_reaped_total",
		Help:      "Stale tasks marked FAILED by the reaper.",
	})
)
