package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity — уровень серьёзности finding.
type Severity string

const (
	SeverityFailure  Severity = "FAILURE"
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
	SeverityNone     Severity = "NONE"
)

// Severities — все уровни в порядке убывания серьёзности.
var Severities = []Severity{
	SeverityFailure,
	SeverityCritical,
	SeverityError,
	SeverityWarning,
	SeverityInfo,
	SeverityNone,
}

// Rank возвращает числовой вес уровня (больше — серьёзнее).
// Неизвестный уровень считается NONE.
func (s Severity) Rank() int {
	switch s {
	case SeverityFailure:
		return 5
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// IsError возвращает true для ERROR, CRITICAL и FAILURE.
func (s Severity) IsError() bool {
	return s.Rank() >= SeverityError.Rank()
}

// IsNotice возвращает true для WARNING и INFO.
func (s Severity) IsNotice() bool {
	return s == SeverityWarning || s == SeverityInfo
}

// ParseSeverity парсит строку в Severity без учёта регистра.
// Пустые и неизвестные значения считаются ERROR: диагностика с
// непонятным уровнем не должна пропасть из финального статуса.
func ParseSeverity(s string) Severity {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, sev := range Severities {
		if string(sev) == s {
			return sev
		}
	}
	return SeverityError
}

// Finding — одна диагностика, полученная при выполнении правила.
//
// Finding сохраняется как есть и больше не меняется.
// Переопределение severity делается при чтении (см. пакет findings).
type Finding struct {
	// ID — уникальный идентификатор finding.
	ID uuid.UUID `json:"id"`

	// EntryID — entry, к которому относится finding.
	EntryID uuid.UUID `json:"entry_id"`

	// TaskID — task, в рамках которой finding получен.
	TaskID uuid.UUID `json:"task_id"`

	// Ruleset — правило (имя task), которое породило finding.
	Ruleset string `json:"ruleset"`

	// Source — компонент внутри правила (например, имя проверки).
	Source string `json:"source"`

	// Code — машинно-читаемый код диагностики.
	Code string `json:"code"`

	// Message — человекочитаемое описание.
	Message string `json:"message"`

	// Severity — уровень серьёзности (как его выдало правило).
	Severity Severity `json:"severity"`

	// Raw — исходные данные диагностики.
	Raw json.RawMessage `json:"raw,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// WithSeverity возвращает копию finding с другим severity.
func (f Finding) WithSeverity(s Severity) Finding {
	f.Severity = s
	return f
}

// Report — результат выполнения правила.
type Report struct {
	// RuleName — имя правила.
	RuleName string `json:"rule_name"`

	// Findings — диагностики в порядке появления.
	Findings []Finding `json:"findings"`

	// Outputs — произвольные результаты правила.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Artifacts — ссылки на выходные файлы (для конвертеров).
	Artifacts map[string]string `json:"artifacts,omitempty"`

	// Placeholder — true, если правило не выполнялось (например, формат не совпал).
	Placeholder bool `json:"placeholder,omitempty"`
}

// NewReport создаёт пустой report для правила.
func NewReport(ruleName string) *Report {
	return &Report{
		RuleName: ruleName,
		Findings: []Finding{},
		Outputs:  make(map[string]any),
	}
}

// AddFinding добавляет finding в report.
func (r *Report) AddFinding(f Finding) {
	r.Findings = append(r.Findings, f)
}
