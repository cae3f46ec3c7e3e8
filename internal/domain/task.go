package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task — один шаг pipeline entry: запуск правила валидации или конвертации.
//
// Имя task уникально в рамках entry. Priority задаёт порядок отправки,
// но не гарантирует порядок выполнения.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// EntryID — ссылка на entry.
	EntryID uuid.UUID `json:"entry_id"`

	// Name — имя правила (например, "gtfs.canonical", "netex.entur").
	Name string `json:"name"`

	// Category — validation или conversion.
	Category Category `json:"category"`

	// Priority — порядок отправки (меньше — раньше).
	Priority int `json:"priority"`

	// Configuration — конфигурация правила в виде jobs.Envelope (может отсутствовать).
	Configuration json.RawMessage `json:"configuration,omitempty"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// ResultRef — ссылка на сохранённый report.
	// Например: "s3://feedline/entries/abc/tasks/gtfs.canonical/report.json"
	ResultRef string `json:"result_ref,omitempty"`

	// Error — причина, если task брошена.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней смены статуса (по нему ищутся зависшие tasks).
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt — время начала выполнения правила.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время перехода в финальный статус.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsFinished возвращает true, если task в финальном статусе.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
