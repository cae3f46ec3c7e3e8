package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/jobs"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/repo"
	"github.com/shaiso/Feedline/internal/rules"
	"github.com/shaiso/Feedline/internal/telemetry"
)

// CodeInvalidConfiguration — finding для конфигурации, которую правило не приняло.
const CodeInvalidConfiguration = "invalid_configuration"

// handleJob выполняет правило для task из job.
func (w *Worker) handleJob(ctx context.Context, msg *mq.Message) error {
	job, err := mq.ParsePayload[jobs.RuleJob](msg)
	if err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}

	// Loop уже положил в ctx логгер с queue, message_id и try_number
	logger := telemetry.WithTask(
		telemetry.WithEntry(telemetry.FromContext(ctx), job.EntryID.String(), job.PublicID),
		job.TaskID.String(), job.TaskName,
	)

	// 1. Загружаем task
	task, err := w.tasks.GetByID(ctx, job.TaskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, job.TaskID)
		}
		return Recoverable(fmt.Errorf("get task: %w", err))
	}

	// Повторная доставка уже завершённой task: только сообщаем результат ещё раз
	if task.Status.IsTerminal() {
		logger.Info("task already finished, announcing result again", "status", task.Status)
		return Recoverable(w.publishResult(ctx, job, task.Status, task.Error))
	}

	entry, err := w.entries.GetByID(ctx, job.EntryID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, job.EntryID)
		}
		return Recoverable(fmt.Errorf("get entry: %w", err))
	}

	rule, err := w.rules.Get(task.Name)
	if err != nil {
		return err
	}

	// 2. Помечаем как running (повторная попытка уже в RUNNING)
	from := []domain.TaskStatus{domain.TaskStatusQueued, domain.TaskStatusRunning}
	if _, err := w.tasks.Transition(ctx, task.ID, from, domain.TaskStatusRunning, time.Now()); err != nil {
		return Recoverable(fmt.Errorf("mark task running: %w", err))
	}

	// 3. Конфигурация: ошибка в ней — ошибка входных данных
	cfg, err := w.rules.DecodeConfiguration(task.Name, job.Configuration)
	if err != nil {
		if !errors.Is(err, jobs.ErrInvalidConfiguration) {
			return err
		}
		logger.Warn("invalid rule configuration", "error", err)
		report := domain.NewReport(task.Name)
		report.AddFinding(rules.NewFinding(task.Name, entry, task, task.Name, CodeInvalidConfiguration, err.Error(), domain.SeverityError))
		return w.complete(ctx, job, entry, task, report)
	}

	// 4. Выполняем правило и ждём результат
	logger.Info("rule started")
	started := time.Now()

	report, err := rules.Await(ctx, rule.Execute(ctx, entry, cfg, task))
	telemetry.RuleDuration.WithLabelValues(rule.Name()).Observe(time.Since(started).Seconds())

	if err != nil {
		if errors.Is(err, rules.ErrInfrastructure) || ctx.Err() != nil {
			return Recoverable(fmt.Errorf("rule %s: %w", rule.Name(), err))
		}
		return fmt.Errorf("rule %s: %w", rule.Name(), err)
	}

	logger.Info("rule finished",
		"findings", len(report.Findings),
		"placeholder", report.Placeholder,
		"duration", time.Since(started),
	)

	return w.complete(ctx, job, entry, task, report)
}

// complete сохраняет report и findings, завершает task и публикует результат.
//
// Повтор после сбоя снова выполняет правило. ID findings зависят только от
// task и позиции finding в report, поэтому повторный Append ничего не удваивает.
func (w *Worker) complete(ctx context.Context, job jobs.RuleJob, entry *domain.Entry, task *domain.Task, report *domain.Report) error {
	for i := range report.Findings {
		report.Findings[i].ID = FindingID(task.ID, i)
	}

	var resultRef string
	if w.reports != nil {
		ref, err := w.reports.Put(ctx, entry.PublicID, task.Name, report)
		if err != nil {
			return Recoverable(fmt.Errorf("store report: %w", err))
		}
		resultRef = ref
	}

	if err := w.findings.Append(ctx, report.Findings); err != nil {
		return Recoverable(fmt.Errorf("append findings: %w", err))
	}

	won, err := w.tasks.Finish(ctx, task.ID, domain.TaskStatusCompleted, "", resultRef, time.Now())
	if err != nil {
		return Recoverable(fmt.Errorf("finish task: %w", err))
	}

	status, errMsg := domain.TaskStatusCompleted, ""
	if won {
		for _, f := range report.Findings {
			telemetry.FindingsRecorded.WithLabelValues(task.Name, string(f.Severity)).Inc()
		}
	} else {
		// Task уже завершил кто-то другой (например, reaper)
		current, err := w.tasks.GetByID(ctx, task.ID)
		if err != nil {
			return Recoverable(fmt.Errorf("get task: %w", err))
		}
		status, errMsg = current.Status, current.Error
		telemetry.FromContext(ctx).Warn("task finished concurrently", "task_id", task.ID, "status", status)
	}

	return Recoverable(w.publishResult(ctx, job, status, errMsg))
}

// handleExhausted бросает task: FAILED, результат в tasks.results,
// исходное сообщение — в DLQ.
func (w *Worker) handleExhausted(ctx context.Context, msg *mq.Message) error {
	var errs []error

	job, err := mq.ParsePayload[jobs.RuleJob](msg)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		errs = append(errs, err)
	} else {
		status, reason, err := w.abandon(ctx, job.TaskID, msg.Retry.TryNumber-1)
		if err != nil {
			errs = append(errs, err)
		}
		if err := w.publishResult(ctx, job, status, reason); err != nil {
			errs = append(errs, err)
		}
	}

	if err := w.channel.Send(ctx, mq.QueueDLQ, msg); err != nil {
		errs = append(errs, fmt.Errorf("park message: %w", err))
	}

	return errors.Join(errs...)
}

// abandon переводит task в FAILED. Если task уже завершена (например,
// исчерпал попытки повторный анонс COMPLETED task), возвращает её
// сохранённый статус и ошибку.
func (w *Worker) abandon(ctx context.Context, taskID uuid.UUID, tries int) (domain.TaskStatus, string, error) {
	reason := fmt.Sprintf("%s after %d tries", ErrRetryExhausted, tries)

	won, err := w.tasks.Finish(ctx, taskID, domain.TaskStatusFailed, reason, "", time.Now())
	if err != nil {
		return domain.TaskStatusFailed, reason, fmt.Errorf("mark task failed: %w", err)
	}
	if won {
		return domain.TaskStatusFailed, reason, nil
	}

	current, err := w.tasks.GetByID(ctx, taskID)
	if err != nil {
		return domain.TaskStatusFailed, reason, fmt.Errorf("get task: %w", err)
	}
	return current.Status, current.Error, nil
}

// publishResult публикует событие task.result.
func (w *Worker) publishResult(ctx context.Context, job jobs.RuleJob, status domain.TaskStatus, errMsg string) error {
	outcome := jobs.OutcomeCompleted
	if status == domain.TaskStatusFailed {
		outcome = jobs.OutcomeFailed
	}

	msg, err := mq.NewMessage(mq.MessageTypeTaskResult, jobs.TaskResult{
		EntryID:  job.EntryID,
		PublicID: job.PublicID,
		TaskID:   job.TaskID,
		TaskName: job.TaskName,
		Outcome:  outcome,
		Error:    errMsg,
	}, domain.NewRetry(w.maxRetries))
	if err != nil {
		return err
	}

	if err := w.channel.Send(ctx, mq.QueueResults, msg); err != nil {
		return fmt.Errorf("publish task result: %w", err)
	}
	return nil
}

// FindingID — ID i-го finding task. Одинаков для всех попыток.
func FindingID(taskID uuid.UUID, i int) uuid.UUID {
	return uuid.NewSHA1(taskID, []byte(strconv.Itoa(i)))
}
