package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/jobs"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/telemetry"
)

// ReapStats — итог одного прохода ReapStale.
type ReapStats struct {
	TasksFailed      int `json:"tasks_failed"`
	EntriesDelegated int `json:"entries_delegated"`
	EntriesAdvanced  int `json:"entries_advanced"`
}

// ReapStale подбирает то, что застряло дольше olderThan:
//   - QUEUED/RUNNING tasks помечаются FAILED, публикуется TaskResult
//   - RECEIVED entries получают DelegationJob повторно
//   - PROCESSING entries продвигаются напрямую
//
// Ошибки отдельных записей не прерывают проход.
func (o *Orchestrator) ReapStale(ctx context.Context, olderThan time.Duration) (ReapStats, error) {
	var stats ReapStats
	var errs []error
	before := time.Now().Add(-olderThan)

	// 1. Зависшие tasks
	stale, err := o.tasks.ListStale(ctx, before, o.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list stale tasks: %w", err)
	}
	for _, task := range stale {
		reaped, err := o.reapTask(ctx, task, olderThan)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		if reaped {
			stats.TasksFailed++
		}
	}

	// 2. Entries, для которых DelegationJob потерялся
	received, err := o.entries.ListByStatus(ctx, domain.StatusReceived, before, o.batchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("list received entries: %w", err))
	}
	for i := range received {
		if err := o.delegate(ctx, &received[i]); err != nil {
			errs = append(errs, fmt.Errorf("entry %s: %w", received[i].ID, err))
			continue
		}
		stats.EntriesDelegated++
	}

	// 3. Entries, чей TaskResult потерялся или ушёл в DLQ
	processing, err := o.entries.ListByStatus(ctx, domain.StatusProcessing, before, o.batchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("list processing entries: %w", err))
	}
	for i := range processing {
		if err := o.advance(ctx, &processing[i]); err != nil {
			errs = append(errs, fmt.Errorf("entry %s: %w", processing[i].ID, err))
			continue
		}
		stats.EntriesAdvanced++
	}

	o.logger.Info("reaper pass completed",
		"tasks_failed", stats.TasksFailed,
		"entries_delegated", stats.EntriesDelegated,
		"entries_advanced", stats.EntriesAdvanced,
		"errors", len(errs),
	)

	return stats, errors.Join(errs...)
}

// reapTask бросает одну зависшую task.
// Возвращает false, если task успел завершить кто-то другой.
func (o *Orchestrator) reapTask(ctx context.Context, task domain.Task, olderThan time.Duration) (bool, error) {
	reason := fmt.Sprintf("no progress in %s status for %s", task.Status, olderThan)

	won, err := o.tasks.Finish(ctx, task.ID, domain.TaskStatusFailed, reason, "", time.Now())
	if err != nil {
		return false, fmt.Errorf("mark task failed: %w", err)
	}
	if !won {
		return false, nil
	}
	telemetry.TasksReaped.Inc()

	o.logger.Warn("stale task abandoned",
		"entry_id", task.EntryID,
		"task_id", task.ID,
		"task_name", task.Name,
		"status", task.Status,
	)

	var publicID string
	if entry, err := o.entries.GetByID(ctx, task.EntryID); err == nil {
		publicID = entry.PublicID
	}

	msg, err := mq.NewMessage(mq.MessageTypeTaskResult, jobs.TaskResult{
		EntryID:  task.EntryID,
		PublicID: publicID,
		TaskID:   task.ID,
		TaskName: task.Name,
		Outcome:  jobs.OutcomeFailed,
		Error:    reason,
	}, domain.NewRetry(o.maxRetries))
	if err != nil {
		return true, err
	}
	if err := o.channel.Send(ctx, mq.QueueResults, msg); err != nil {
		// Entry продвинет следующий проход через PROCESSING
		return true, fmt.Errorf("publish task result: %w", err)
	}
	return true, nil
}
