// Package jobs описывает payload сообщений pipeline.
//
// Payload всегда едет внутри mq.Message; тип payload определяется
// mq.MessageType, а конфигурация правила — дискриминатором "type"
// внутри Configuration.
package jobs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/mq"
)

// ErrInvalidJob — payload не содержит обязательных полей.
var ErrInvalidJob = errors.New("invalid job")

// RuleJob — запуск одного правила для task entry.
//
// Используется и для валидации, и для конвертации; вид job
// задаётся mq.MessageType сообщения.
type RuleJob struct {
	// EntryID — внутренний идентификатор entry.
	EntryID uuid.UUID `json:"entry_id"`

	// PublicID — публичный идентификатор entry (для логов).
	PublicID string `json:"public_id"`

	// TaskID — task, которую выполняет правило.
	TaskID uuid.UUID `json:"task_id"`

	// TaskName — имя правила.
	TaskName string `json:"task_name"`

	// Configuration — конфигурация правила (может отсутствовать).
	Configuration *Envelope `json:"configuration,omitempty"`
}

// Validate проверяет обязательные поля.
func (j RuleJob) Validate() error {
	if j.EntryID == uuid.Nil || j.TaskID == uuid.Nil || j.TaskName == "" {
		return fmt.Errorf("%w: entry_id, task_id and task_name are required", ErrInvalidJob)
	}
	return nil
}

// DelegationJob — entry, для которой нужно отправить готовые tasks.
type DelegationJob struct {
	EntryID  uuid.UUID `json:"entry_id"`
	PublicID string    `json:"public_id"`
}

// Validate проверяет обязательные поля.
func (j DelegationJob) Validate() error {
	if j.EntryID == uuid.Nil {
		return fmt.Errorf("%w: entry_id is required", ErrInvalidJob)
	}
	return nil
}

// Outcome — итог выполнения task.
type Outcome string

const (
	// OutcomeCompleted — правило вернуло report.
	OutcomeCompleted Outcome = "completed"

	// OutcomeFailed — task брошена (retry исчерпаны или task зависла).
	OutcomeFailed Outcome = "failed"
)

// TaskResult — событие о завершении task.
type TaskResult struct {
	EntryID  uuid.UUID `json:"entry_id"`
	PublicID string    `json:"public_id"`
	TaskID   uuid.UUID `json:"task_id"`
	TaskName string    `json:"task_name"`
	Outcome  Outcome   `json:"outcome"`
	Error    string    `json:"error,omitempty"`
}

// Validate проверяет обязательные поля.
func (r TaskResult) Validate() error {
	if r.EntryID == uuid.Nil || r.TaskID == uuid.Nil {
		return fmt.Errorf("%w: entry_id and task_id are required", ErrInvalidJob)
	}
	return nil
}

// MessageTypeFor возвращает тип сообщения для категории task.
func MessageTypeFor(category domain.Category) (mq.MessageType, error) {
	switch category {
	case domain.CategoryValidation:
		return mq.MessageTypeValidation, nil
	case domain.CategoryConversion:
		return mq.MessageTypeConversion, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidJob, category)
	}
}
