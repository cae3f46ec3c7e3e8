package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entry — отправленный на обработку feed.
//
// Entry создаётся при приёме feed и содержит упорядоченный набор tasks
// (валидации и конвертации). Статус entry пишет только Orchestrator.
type Entry struct {
	// ID — внутренний идентификатор.
	ID uuid.UUID `json:"id"`

	// PublicID — публичный идентификатор, который видит клиент.
	PublicID string `json:"public_id"`

	// Format — формат исходных данных ("gtfs", "netex", "gbfs", ...).
	Format string `json:"format"`

	// URL — откуда скачивать feed.
	URL string `json:"url"`

	// Etag — etag источника на момент приёма.
	Etag string `json:"etag,omitempty"`

	// BusinessID — организация-владелец.
	BusinessID string `json:"business_id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty"`

	// Metadata — произвольные метаданные клиента.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Notifications — webhook-адреса для уведомления о завершении.
	Notifications []string `json:"notifications,omitempty"`

	// Status — текущий статус.
	Status Status `json:"status"`

	// Tasks — tasks entry (загружаются отдельно).
	Tasks []Task `json:"tasks,omitempty"`

	// CreatedAt — время приёма.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время отправки первой task.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время выставления финального статуса.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsFinished возвращает true, если entry в финальном статусе.
func (e *Entry) IsFinished() bool {
	return e.Status.IsTerminal()
}

// Duration возвращает продолжительность обработки.
func (e *Entry) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}

// Task возвращает task по имени.
func (e *Entry) Task(name string) (*Task, bool) {
	for i := range e.Tasks {
		if e.Tasks[i].Name == name {
			return &e.Tasks[i], true
		}
	}
	return nil, false
}
