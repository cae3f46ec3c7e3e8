package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/jobs"
)

// CodeFormatMismatch — код finding при несовпадении формата entry и правила.
const CodeFormatMismatch = "format_mismatch"

// Result — итог асинхронного выполнения правила.
type Result struct {
	Report *domain.Report
	Err    error
}

// Rule — правило, которое выполняет task.
//
// Реализаций две: ValidatorRule и ConverterRule. Других не бывает.
type Rule interface {
	// Name возвращает имя правила (оно же имя task).
	Name() string

	// Category возвращает категорию task.
	Category() domain.Category

	// Format возвращает формат входных данных, который ожидает правило.
	Format() string

	// NewConfiguration создаёт пустую конфигурацию правила (nil — без конфигурации).
	NewConfiguration() jobs.Configuration

	// Execute запускает правило. Результат приходит в канал ровно один раз.
	//
	// Если формат entry не совпадает с форматом правила, доменная логика
	// не выполняется: в канале сразу лежит placeholder report с одним
	// ERROR finding.
	Execute(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) <-chan Result

	sealed()
}

// Validator — доменная логика валидации.
type Validator interface {
	Validate(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error)
}

// ValidatorFunc — функция как Validator.
type ValidatorFunc func(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error)

func (f ValidatorFunc) Validate(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error) {
	return f(ctx, entry, cfg, task)
}

// Converter — доменная логика конвертации.
type Converter interface {
	Convert(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error)
}

// ConverterFunc — функция как Converter.
type ConverterFunc func(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error)

func (f ConverterFunc) Convert(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) (*domain.Report, error) {
	return f(ctx, entry, cfg, task)
}

// Option настраивает правило.
type Option func(*base)

// WithConfiguration задаёт фабрику конфигурации правила.
func WithConfiguration(factory func() jobs.Configuration) Option {
	return func(b *base) {
		b.newConfig = factory
	}
}

type base struct {
	name      string
	format    string
	newConfig func() jobs.Configuration
}

func (b *base) Name() string   { return b.name }
func (b *base) Format() string { return b.format }
func (b *base) sealed()        {}

func (b *base) NewConfiguration() jobs.Configuration {
	if b.newConfig == nil {
		return nil
	}
	return b.newConfig()
}

// ValidatorRule — правило валидации одного формата.
type ValidatorRule struct {
	base
	validator Validator
}

// NewValidatorRule создаёт правило валидации.
func NewValidatorRule(name, format string, v Validator, opts ...Option) *ValidatorRule {
	r := &ValidatorRule{base: base{name: name, format: format}, validator: v}
	for _, opt := range opts {
		opt(&r.base)
	}
	return r
}

// Category возвращает CategoryValidation.
func (r *ValidatorRule) Category() domain.Category {
	return domain.CategoryValidation
}

// Execute запускает валидацию.
func (r *ValidatorRule) Execute(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) <-chan Result {
	return run(ctx, &r.base, entry, task, func(ctx context.Context) (*domain.Report, error) {
		return r.validator.Validate(ctx, entry, cfg, task)
	})
}

// ConverterRule — правило конвертации из одного формата в другой.
type ConverterRule struct {
	base
	target    string
	converter Converter
}

// NewConverterRule создаёт правило конвертации from → to.
func NewConverterRule(name, from, to string, c Converter, opts ...Option) *ConverterRule {
	r := &ConverterRule{base: base{name: name, format: from}, target: to, converter: c}
	for _, opt := range opts {
		opt(&r.base)
	}
	return r
}

// Category возвращает CategoryConversion.
func (r *ConverterRule) Category() domain.Category {
	return domain.CategoryConversion
}

// Target возвращает формат результата.
func (r *ConverterRule) Target() string {
	return r.target
}

// Execute запускает конвертацию.
func (r *ConverterRule) Execute(ctx context.Context, entry *domain.Entry, cfg jobs.Configuration, task *domain.Task) <-chan Result {
	return run(ctx, &r.base, entry, task, func(ctx context.Context) (*domain.Report, error) {
		return r.converter.Convert(ctx, entry, cfg, task)
	})
}

// run — общий для обоих вариантов контракт выполнения.
func run(ctx context.Context, b *base, entry *domain.Entry, task *domain.Task, fn func(context.Context) (*domain.Report, error)) <-chan Result {
	out := make(chan Result, 1)

	if !strings.EqualFold(entry.Format, b.format) {
		out <- Result{Report: formatMismatch(b, entry, task)}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		defer func() {
			if p := recover(); p != nil {
				out <- Result{Err: fmt.Errorf("%w: %s: %v", ErrRulePanic, b.name, p)}
			}
		}()

		report, err := fn(ctx)
		out <- settle(b, entry, task, report, err)
	}()

	return out
}

// settle превращает DataError в finding; остальные ошибки отдаёт как есть.
func settle(b *base, entry *domain.Entry, task *domain.Task, report *domain.Report, err error) Result {
	if report == nil {
		report = domain.NewReport(b.name)
	}
	if report.RuleName == "" {
		report.RuleName = b.name
	}

	if err != nil {
		var dataErr *DataError
		if !errors.As(err, &dataErr) {
			return Result{Err: err}
		}
		severity := dataErr.Severity
		if severity == "" {
			severity = domain.SeverityError
		}
		source := dataErr.Source
		if source == "" {
			source = b.name
		}
		report.AddFinding(NewFinding(b.name, entry, task, source, dataErr.Code, err.Error(), severity))
	}

	// Rule может не знать entry/task — проставляем
	for i := range report.Findings {
		f := &report.Findings[i]
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.EntryID = entry.ID
		if task != nil {
			f.TaskID = task.ID
		}
		if f.Ruleset == "" {
			f.Ruleset = b.name
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
	}

	return Result{Report: report}
}

func formatMismatch(b *base, entry *domain.Entry, task *domain.Task) *domain.Report {
	report := domain.NewReport(b.name)
	report.Placeholder = true
	report.AddFinding(NewFinding(b.name, entry, task, b.name, CodeFormatMismatch,
		fmt.Sprintf("rule %s expects format %q, entry %s has format %q", b.name, b.format, entry.PublicID, entry.Format),
		domain.SeverityError))
	return report
}

// NewFinding создаёт finding правила.
func NewFinding(ruleName string, entry *domain.Entry, task *domain.Task, source, code, message string, severity domain.Severity) domain.Finding {
	f := domain.Finding{
		ID:        uuid.New(),
		EntryID:   entry.ID,
		Ruleset:   ruleName,
		Source:    source,
		Code:      code,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}
	if task != nil {
		f.TaskID = task.ID
	}
	return f
}

// Await ждёт результат правила или отмену ctx.
func Await(ctx context.Context, results <-chan Result) (*domain.Report, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-results:
		if !ok {
			return nil, fmt.Errorf("%w: result channel closed", ErrRulePanic)
		}
		return res.Report, res.Err
	}
}
