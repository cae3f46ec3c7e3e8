package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/delegator"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/findings"
	"github.com/shaiso/Feedline/internal/jobs"
	"github.com/shaiso/Feedline/internal/mq"
	"github.com/shaiso/Feedline/internal/repo"
	"github.com/shaiso/Feedline/internal/telemetry"
	"github.com/shaiso/Feedline/internal/worker"
)

// Submission — запрос на обработку фида.
type Submission struct {
	// PublicID — публичный идентификатор (генерируется, если пуст).
	PublicID string `json:"public_id,omitempty"`

	Format        string               `json:"format"`
	URL           string               `json:"url"`
	Etag          string               `json:"etag,omitempty"`
	BusinessID    string               `json:"business_id,omitempty"`
	Name          string               `json:"name,omitempty"`
	Metadata      map[string]any       `json:"metadata,omitempty"`
	Notifications []string             `json:"notifications,omitempty"`
	Tasks         []delegator.TaskSpec `json:"tasks"`
}

// Validate проверяет обязательные поля.
func (s *Submission) Validate() error {
	if strings.TrimSpace(s.Format) == "" {
		return fmt.Errorf("%w: format is required", ErrInvalidSubmission)
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidSubmission)
	}
	for _, spec := range s.Tasks {
		if len(spec.Configuration) == 0 {
			continue
		}
		var env jobs.Envelope
		if err := json.Unmarshal(spec.Configuration, &env); err != nil {
			return fmt.Errorf("%w: task %s: configuration: %v", ErrInvalidSubmission, spec.Name, err)
		}
	}
	return nil
}

// Submit создаёт entry (RECEIVED) и её tasks (PENDING) и отправляет
// DelegationJob. Если отправить не удалось, entry подберёт ReapStale.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*domain.Entry, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	entry := &domain.Entry{
		ID:            uuid.New(),
		PublicID:      sub.PublicID,
		Format:        strings.ToLower(sub.Format),
		URL:           sub.URL,
		Etag:          sub.Etag,
		BusinessID:    sub.BusinessID,
		Name:          sub.Name,
		Metadata:      sub.Metadata,
		Notifications: sub.Notifications,
		Status:        domain.StatusReceived,
		CreatedAt:     time.Now(),
	}
	if entry.PublicID == "" {
		entry.PublicID = uuid.NewString()
	}

	tasks, err := delegator.Plan(entry.ID, sub.Tasks, o.categoryOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	if err := o.entries.Create(ctx, entry, tasks); err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	entry.Tasks = tasks

	logger := telemetry.WithEntry(o.logger, entry.ID.String(), entry.PublicID)
	logger.Info("entry received", "format", entry.Format, "tasks", len(tasks))

	if err := o.delegate(ctx, entry); err != nil {
		logger.Warn("failed to send delegation job, deferring to reaper", "error", err)
	}

	return entry, nil
}

// delegate отправляет DelegationJob для entry.
func (o *Orchestrator) delegate(ctx context.Context, entry *domain.Entry) error {
	msg, err := mq.NewMessage(mq.MessageTypeDelegation, jobs.DelegationJob{
		EntryID:  entry.ID,
		PublicID: entry.PublicID,
	}, domain.NewRetry(o.maxRetries))
	if err != nil {
		return err
	}
	return o.channel.Send(ctx, mq.QueueDelegation, msg)
}

// HandleDelegation обрабатывает DelegationJob: отправляет готовые tasks
// и переводит entry в PROCESSING.
func (o *Orchestrator) HandleDelegation(ctx context.Context, msg *mq.Message) error {
	job, err := mq.ParsePayload[jobs.DelegationJob](msg)
	if err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}

	entry, err := o.loadEntry(ctx, job.EntryID)
	if err != nil {
		return err
	}
	if entry.Status.IsTerminal() {
		o.logger.Debug("entry already finished, skipping delegation",
			"entry_id", entry.ID,
			"status", entry.Status,
		)
		return nil
	}

	return o.advance(ctx, entry)
}

// HandleTaskResult обрабатывает TaskResult: отправляет ставшие готовыми
// tasks и финализирует entry, когда все tasks завершены.
func (o *Orchestrator) HandleTaskResult(ctx context.Context, msg *mq.Message) error {
	res, err := mq.ParsePayload[jobs.TaskResult](msg)
	if err != nil {
		return err
	}
	if err := res.Validate(); err != nil {
		return err
	}

	telemetry.FromContext(ctx).Debug("received task result",
		"entry_id", res.EntryID,
		"task_id", res.TaskID,
		"task_name", res.TaskName,
		"outcome", res.Outcome,
	)

	entry, err := o.loadEntry(ctx, res.EntryID)
	if err != nil {
		return err
	}
	if entry.Status.IsTerminal() {
		return nil
	}

	return o.advance(ctx, entry)
}

// loadEntry загружает entry; сбой БД — recoverable.
func (o *Orchestrator) loadEntry(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	entry, err := o.entries.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return nil, worker.Recoverable(fmt.Errorf("get entry: %w", err))
	}
	return entry, nil
}

// advance продвигает entry: RECEIVED → PROCESSING, отправка готовых tasks,
// финализация. Повторный вызов безопасен.
func (o *Orchestrator) advance(ctx context.Context, entry *domain.Entry) error {
	tasks, err := o.tasks.ListByEntry(ctx, entry.ID)
	if err != nil {
		return worker.Recoverable(fmt.Errorf("list tasks: %w", err))
	}

	if entry.Status == domain.StatusReceived {
		from := []domain.Status{domain.StatusReceived}
		if _, err := o.entries.CompareAndSetStatus(ctx, entry.ID, from, domain.StatusProcessing, time.Now()); err != nil {
			return worker.Recoverable(fmt.Errorf("mark entry processing: %w", err))
		}
	}

	if err := o.dispatch(ctx, entry, tasks); err != nil {
		return err
	}

	return o.finalize(ctx, entry, tasks)
}

// dispatch отправляет готовые tasks в очереди их правил.
// Task отправляет тот, кто выиграл CAS PENDING → QUEUED.
func (o *Orchestrator) dispatch(ctx context.Context, entry *domain.Entry, tasks []domain.Task) error {
	for _, task := range delegator.Ready(tasks) {
		msg, err := o.ruleMessage(entry, task)
		if err != nil {
			return fmt.Errorf("task %s: %w", task.Name, err)
		}

		won, err := o.tasks.Transition(ctx, task.ID, []domain.TaskStatus{domain.TaskStatusPending}, domain.TaskStatusQueued, time.Now())
		if err != nil {
			return worker.Recoverable(fmt.Errorf("mark task queued: %w", err))
		}
		if !won {
			continue
		}

		queue := delegator.QueueFor(task)
		if err := o.channel.Send(ctx, queue, msg); err != nil {
			// Возвращаем task в PENDING, чтобы повторная попытка её отправила
			back := []domain.TaskStatus{domain.TaskStatusQueued}
			if _, revertErr := o.tasks.Transition(context.WithoutCancel(ctx), task.ID, back, domain.TaskStatusPending, time.Now()); revertErr != nil {
				err = errors.Join(err, revertErr)
			}
			return worker.Recoverable(fmt.Errorf("send %s: %w", queue, err))
		}

		o.logger.Info("task dispatched",
			"entry_id", entry.ID,
			"task_id", task.ID,
			"task_name", task.Name,
			"priority", task.Priority,
			"queue", queue,
		)
	}
	return nil
}

// ruleMessage собирает RuleJob для task.
func (o *Orchestrator) ruleMessage(entry *domain.Entry, task domain.Task) (*mq.Message, error) {
	var cfg *jobs.Envelope
	if len(task.Configuration) > 0 {
		cfg = &jobs.Envelope{}
		if err := json.Unmarshal(task.Configuration, cfg); err != nil {
			return nil, fmt.Errorf("decode configuration: %w", err)
		}
	}

	msgType, err := jobs.MessageTypeFor(task.Category)
	if err != nil {
		return nil, err
	}

	return mq.NewMessage(msgType, jobs.RuleJob{
		EntryID:       entry.ID,
		PublicID:      entry.PublicID,
		TaskID:        task.ID,
		TaskName:      task.Name,
		Configuration: cfg,
	}, domain.NewRetry(o.maxRetries))
}

// finalize записывает финальный статус entry, если все tasks завершены.
// Пишет и уведомляет только победитель compare-and-set.
func (o *Orchestrator) finalize(ctx context.Context, entry *domain.Entry, tasks []domain.Task) error {
	raw, err := o.findings.ListByEntry(ctx, entry.ID)
	if err != nil {
		return worker.Recoverable(fmt.Errorf("list findings: %w", err))
	}

	status, done := findings.EntryStatus(tasks, raw)
	if !done {
		return nil
	}

	return o.finish(ctx, entry, status)
}

// finish переводит entry в финальный статус status.
func (o *Orchestrator) finish(ctx context.Context, entry *domain.Entry, status domain.Status) error {
	now := time.Now()
	from := []domain.Status{domain.StatusReceived, domain.StatusProcessing}

	won, err := o.entries.CompareAndSetStatus(ctx, entry.ID, from, status, now)
	if err != nil {
		return worker.Recoverable(fmt.Errorf("finish entry: %w", err))
	}

	logger := telemetry.WithEntry(o.logger, entry.ID.String(), entry.PublicID)
	if !won {
		logger.Debug("entry already finished by another writer")
		return nil
	}

	entry.Status = status
	entry.CompletedAt = &now
	telemetry.EntriesFinished.WithLabelValues(string(status)).Inc()
	logger.Info("entry finished", "status", status)

	o.notify(ctx, entry)
	return nil
}

// notify вызывает Notifier; ошибки не влияют на entry.
func (o *Orchestrator) notify(ctx context.Context, entry *domain.Entry) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, entry); err != nil {
		o.logger.Warn("notification failed",
			"entry_id", entry.ID,
			"public_id", entry.PublicID,
			"error", err,
		)
	}
}

// handleDelegationExhausted бросает entry: FAILED, сообщение — в DLQ.
func (o *Orchestrator) handleDelegationExhausted(ctx context.Context, msg *mq.Message) error {
	var errs []error

	job, err := mq.ParsePayload[jobs.DelegationJob](msg)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		errs = append(errs, err)
	} else {
		entry, err := o.entries.GetByID(ctx, job.EntryID)
		if err != nil {
			errs = append(errs, fmt.Errorf("get entry: %w", err))
		} else if err := o.finish(ctx, entry, domain.StatusFailed); err != nil {
			errs = append(errs, err)
		}
	}

	if err := o.channel.Send(ctx, mq.QueueDLQ, msg); err != nil {
		errs = append(errs, fmt.Errorf("park message: %w", err))
	}
	return errors.Join(errs...)
}

// handleResultExhausted откладывает TaskResult в DLQ.
// Entry остаётся PROCESSING и будет продвинута ReapStale.
func (o *Orchestrator) handleResultExhausted(ctx context.Context, msg *mq.Message) error {
	if err := o.channel.Send(ctx, mq.QueueDLQ, msg); err != nil {
		return fmt.Errorf("park message: %w", err)
	}
	return nil
}
