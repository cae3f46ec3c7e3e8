package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrEntryNotFound — entry не найдена в БД.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrInvalidSubmission — запрос на создание entry некорректен.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
