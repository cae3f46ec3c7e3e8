// Package findings сворачивает сырые findings правил в сводку task и
// финальный статус entry.
//
// Сохранённые findings никогда не меняются: переопределение severity
// (Overrides) применяется только к копиям при чтении.
package findings

import (
	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
)

// Системные коды: сбой инфраструктуры внутри правила, а не ошибка в данных.
const (
	CodeURLConnection    = "url_connection_error"
	CodeIOError          = "i_o_error"
	CodeThreadExecution  = "thread_execution_error"
	CodeValidatorRuntime = "runtime_exception_in_validator_error"
	CodeLoaderRuntime    = "runtime_exception_in_loader_error"
	CodeRuleEngine       = "rule_engine_failure"
)

// Overrides — код finding → severity, которая заменяет ERROR при чтении.
var Overrides = map[string]domain.Severity{
	CodeURLConnection:    domain.SeverityWarning,
	CodeIOError:          domain.SeverityWarning,
	CodeThreadExecution:  domain.SeverityWarning,
	CodeValidatorRuntime: domain.SeverityWarning,
	CodeLoaderRuntime:    domain.SeverityWarning,
	CodeRuleEngine:       domain.SeverityWarning,
}

// Effective возвращает finding с учётом Overrides.
// Переопределяется только ERROR; исходный finding не меняется.
func Effective(f domain.Finding) domain.Finding {
	if f.Severity != domain.SeverityError {
		return f
	}
	if to, ok := Overrides[f.Code]; ok {
		return f.WithSeverity(to)
	}
	return f
}

// Summary — сводка findings одной task.
type Summary struct {
	// TaskID — task, к которой относится сводка.
	TaskID uuid.UUID `json:"task_id"`

	// Findings — findings с effective severity, в исходном порядке.
	Findings []domain.Finding `json:"findings"`

	// Counts — количество findings по effective severity.
	Counts map[domain.Severity]int `json:"counts"`

	// Highest — самая серьёзная effective severity (NONE, если findings нет).
	Highest domain.Severity `json:"highest"`
}

// HasErrors возвращает true, если есть ERROR, CRITICAL или FAILURE.
func (s Summary) HasErrors() bool {
	return s.Highest.IsError()
}

// HasNotices возвращает true, если есть WARNING или INFO.
func (s Summary) HasNotices() bool {
	return s.Counts[domain.SeverityWarning] > 0 || s.Counts[domain.SeverityInfo] > 0
}

// Aggregate строит сводку task из сырых findings.
// Порядок сохраняется, дубликаты не удаляются.
func Aggregate(taskID uuid.UUID, raw []domain.Finding) Summary {
	s := Summary{
		TaskID:   taskID,
		Findings: make([]domain.Finding, 0, len(raw)),
		Counts:   make(map[domain.Severity]int),
		Highest:  domain.SeverityNone,
	}

	for _, f := range raw {
		eff := Effective(f)
		s.Findings = append(s.Findings, eff)
		s.Counts[eff.Severity]++
		if eff.Severity.Rank() > s.Highest.Rank() {
			s.Highest = eff.Severity
		}
	}
	return s
}

// AggregateEntry группирует findings entry по task.
// У каждой task есть сводка, даже без findings.
func AggregateEntry(tasks []domain.Task, raw []domain.Finding) map[uuid.UUID]Summary {
	byTask := make(map[uuid.UUID][]domain.Finding, len(tasks))
	for _, f := range raw {
		byTask[f.TaskID] = append(byTask[f.TaskID], f)
	}

	out := make(map[uuid.UUID]Summary, len(tasks))
	for _, t := range tasks {
		out[t.ID] = Aggregate(t.ID, byTask[t.ID])
	}
	return out
}

// EntryStatus вычисляет финальный статус entry.
//
// Пока хотя бы одна task не в финальном состоянии, возвращает
// (PROCESSING, false). Иначе, по убыванию приоритета:
//   - FAILED — есть брошенная task (retry исчерпаны)
//   - ERRORS — есть ERROR, CRITICAL или FAILURE
//   - WARNINGS — есть WARNING или INFO
//   - SUCCESS — всё остальное, включая entry без tasks
func EntryStatus(tasks []domain.Task, raw []domain.Finding) (domain.Status, bool) {
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			return domain.StatusProcessing, false
		}
	}

	for _, t := range tasks {
		if t.Status == domain.TaskStatusFailed {
			return domain.StatusFailed, true
		}
	}

	summaries := AggregateEntry(tasks, raw)
	var errs, notices bool
	for _, s := range summaries {
		errs = errs || s.HasErrors()
		notices = notices || s.HasNotices()
	}

	switch {
	case errs:
		return domain.StatusErrors, true
	case notices:
		return domain.StatusWarnings, true
	default:
		return domain.StatusSuccess, true
	}
}
