package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/telemetry"
)

// Handler выполняет тело job.
type Handler func(ctx context.Context, msg *mq.Message) error

// ExhaustedHandler вызывается вместо Handler, когда попытки исчерпаны.
type ExhaustedHandler func(ctx context.Context, msg *mq.Message) error

// Loop — цикл обработки одной очереди.
//
// Для каждого сообщения:
//  1. Retry.ShouldAttempt() == false → ExhaustedHandler, Handler не вызывается
//  2. иначе Handler; RecoverableError → копия с Retry+1 в ту же очередь
//  3. любая другая ошибка или паника логируется и дальше не идёт
//  4. исходное сообщение удаляется ровно один раз при любом исходе
//
// Сообщения обрабатываются по одному: следующее берётся только после
// удаления предыдущего.
type Loop struct {
	channel   mq.Channel
	queue     mq.Queue
	handle    Handler
	exhausted ExhaustedHandler
	logger    *slog.Logger
}

// NewLoop создаёт цикл для очереди.
func NewLoop(channel mq.Channel, queue mq.Queue, handle Handler, exhausted ExhaustedHandler, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		channel:   channel,
		queue:     queue,
		handle:    handle,
		exhausted: exhausted,
		logger:    telemetry.WithQueue(logger, string(queue)),
	}
}

// Queue возвращает очередь цикла.
func (l *Loop) Queue() mq.Queue {
	return l.queue
}

// Run обрабатывает очередь до отмены ctx, опрашивая её раз в interval.
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("loop started", "poll_interval", interval)

	for {
		if _, err := l.Drain(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("receive failed", "error", err)
		}

		select {
		case <-ctx.Done():
			l.logger.Info("loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Drain обрабатывает доступные сейчас сообщения.
// Возвращает количество обработанных сообщений.
//
// После requeue проход заканчивается: повторная попытка ждёт следующего
// опроса (в Run — interval), а не берётся из очереди сразу же.
func (l *Loop) Drain(ctx context.Context) (int, error) {
	n := 0
	for d, err := range l.channel.Receive(ctx, l.queue) {
		if err != nil {
			return n, fmt.Errorf("receive %s: %w", l.queue, err)
		}
		outcome := l.Process(ctx, d)
		n++

		if outcome == telemetry.OutcomeRequeued || ctx.Err() != nil {
			break
		}
	}
	return n, nil
}

// Process обрабатывает одно полученное сообщение и возвращает исход.
func (l *Loop) Process(ctx context.Context, d *mq.Delivery) (outcome string) {
	logger := l.logger

	defer func() {
		telemetry.MessagesProcessed.WithLabelValues(string(l.queue), outcome).Inc()
		if err := l.channel.Delete(context.WithoutCancel(ctx), l.queue, d.Handle); err != nil {
			telemetry.DeleteFailures.WithLabelValues(string(l.queue)).Inc()
			logger.Error("failed to delete message", "handle", d.Handle, "error", err)
		}
	}()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("unexpected fault", "error", fmt.Errorf("%w: %v", ErrHandlerPanic, p))
			outcome = telemetry.OutcomeFailed
		}
	}()

	msg, err := mq.Decode(d.Body)
	if err != nil {
		logger.Error("dropping malformed message", "error", err)
		return telemetry.OutcomeMalformed
	}

	logger = logger.With(
		"message_id", msg.ID,
		"type", msg.Type,
		"try_number", msg.Retry.TryNumber,
		"max_retries", msg.Retry.MaxRetries,
	)
	ctx = telemetry.WithLogger(ctx, logger)

	if !msg.Retry.ShouldAttempt() {
		logger.Warn("retry attempts exhausted")
		if l.exhausted != nil {
			if err := l.exhausted(ctx, msg); err != nil {
				logger.Error("exhausted handler failed", "error", err)
			}
		}
		return telemetry.OutcomeExhausted
	}

	err = l.handle(ctx, msg)
	switch {
	case err == nil:
		logger.Debug("message processed")
		return telemetry.OutcomeSuccess

	case IsRecoverable(err):
		next := msg.Requeue()
		if sendErr := l.channel.Send(context.WithoutCancel(ctx), l.queue, next); sendErr != nil {
			logger.Error("failed to requeue message", "error", sendErr, "cause", err)
			return telemetry.OutcomeFailed
		}
		logger.Warn("message requeued", "next_try", next.Retry.TryNumber, "error", err)
		return telemetry.OutcomeRequeued

	default:
		logger.Error("unexpected fault", "error", err)
		return telemetry.OutcomeFailed
	}
}
