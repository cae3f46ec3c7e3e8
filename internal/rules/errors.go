package rules

import (
	"errors"
	"fmt"

	"github.com/shaiso/Feedline/internal/domain"
)

// Ошибки правил.
var (
	// ErrUnknownRule — правило не зарегистрировано.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrInfrastructure — сбой инфраструктуры (сеть, 5xx, I/O).
	// Воркер повторяет такие job через requeue.
	ErrInfrastructure = errors.New("rule infrastructure failure")

	// ErrRulePanic — паника внутри правила.
	ErrRulePanic = errors.New("rule panicked")

	// ErrInvalidDeclaration — строка RULES не разобрана.
	ErrInvalidDeclaration = errors.New("invalid rule declaration")
)

// DataError — ошибка, вызванная входными данными.
//
// Правило возвращает её из доменной логики; ValidatorRule и ConverterRule
// превращают её в finding вместо ошибки.
type DataError struct {
	// Code — код finding.
	Code string

	// Source — компонент правила.
	Source string

	// Severity — уровень (ERROR, если пусто).
	Severity domain.Severity

	// Err — исходная ошибка.
	Err error
}

func (e *DataError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError создаёт DataError с уровнем ERROR.
func NewDataError(code string, err error) *DataError {
	return &DataError{Code: code, Severity: domain.SeverityError, Err: err}
}

// Infrastructure оборачивает err в ErrInfrastructure.
func Infrastructure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInfrastructure, fmt.Sprintf(format, args...))
}
