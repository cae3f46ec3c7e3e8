package worker

import (
	"errors"
	"fmt"
)

// Ошибки воркера.
var (
	// ErrTaskNotFound — task из job не найдена в БД.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEntryNotFound — entry из job не найдена в БД.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrRetryExhausted — все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrHandlerPanic — обработчик сообщения запаниковал.
	ErrHandlerPanic = errors.New("handler panicked")
)

// RecoverableError — ошибка, после которой job нужно повторить.
//
// Loop отправляет копию сообщения с увеличенным Retry в ту же очередь.
// Любая другая ошибка обработчика считается неожиданной: она
// логируется, а сообщение удаляется.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("recoverable: %v", e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// Recoverable помечает err как повторяемую. nil остаётся nil.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Err: err}
}

// IsRecoverable проверяет, помечена ли ошибка как повторяемая.
func IsRecoverable(err error) bool {
	var rec *RecoverableError
	return errors.As(err, &rec)
}
