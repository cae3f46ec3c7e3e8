package domain

// Status — итоговый статус entry.
//
// Жизненный цикл:
//
//	RECEIVED → PROCESSING → SUCCESS
//	                      ↘ WARNINGS
//	                      ↘ ERRORS
//	                      ↘ FAILED
//
// Переходы монотонны: из терминального статуса выхода нет,
// в RECEIVED/PROCESSING после выхода из них не возвращаемся.
type Status string

const (
	// StatusReceived — entry создан, ни одна task ещё не отправлена.
	StatusReceived Status = "RECEIVED"

	// StatusProcessing — хотя бы одна task отправлена в очередь.
	StatusProcessing Status = "PROCESSING"

	// StatusSuccess — все tasks завершены, findings уровня ERROR и выше нет,
	// предупреждений тоже нет.
	StatusSuccess Status = "SUCCESS"

	// StatusWarnings — есть только WARNING/INFO findings.
	StatusWarnings Status = "WARNINGS"

	// StatusErrors — есть findings уровня ERROR/CRITICAL/FAILURE.
	StatusErrors Status = "ERRORS"

	// StatusFailed — хотя бы одна task брошена после исчерпания retry.
	StatusFailed Status = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusWarnings, StatusErrors, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет, допустим ли переход s → next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusReceived:
		return next == StatusProcessing || next.IsTerminal()
	case StatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParseStatus парсит строку в Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusReceived, StatusProcessing, StatusSuccess, StatusWarnings, StatusErrors, StatusFailed:
		return st, true
	default:
		return "", false
	}
}

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	PENDING → QUEUED → RUNNING → COMPLETED
//	                           ↘ FAILED (retry исчерпаны или task зависла)
type TaskStatus string

const (
	// TaskStatusPending — task создана, но ещё не отправлена в очередь.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusQueued — job message для task отправлен в очередь правила.
	TaskStatusQueued TaskStatus = "QUEUED"

	// TaskStatusRunning — правило выполняется воркером.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusCompleted — правило вернуло report (findings могут быть любыми).
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — task брошена без пригодного report.
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Category — категория task.
type Category string

const (
	// CategoryValidation — валидация исходного feed.
	CategoryValidation Category = "validation"

	// CategoryConversion — конвертация в другой формат.
	CategoryConversion Category = "conversion"
)

// Valid проверяет, что категория известна.
func (c Category) Valid() bool {
	return c == CategoryValidation || c == CategoryConversion
}

// Stage возвращает порядок стадии: validation всегда раньше conversion.
func (c Category) Stage() int {
	if c == CategoryConversion {
		return 1
	}
	return 0
}
