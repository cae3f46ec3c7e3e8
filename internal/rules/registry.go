package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/jobs"
)

// Registry — реестр правил по имени.
//
// Заполняется при старте процесса. Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry создаёт реестр с переданными правилами.
func NewRegistry(rules ...Rule) *Registry {
	r := &Registry{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		r.Register(rule)
	}
	return r
}

// Register регистрирует правило.
// Правило с тем же именем перезаписывается.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.Name()] = rule
}

// Get возвращает правило по имени.
// Возвращает ErrUnknownRule, если правило не найдено.
func (r *Registry) Get(name string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, name)
	}
	return rule, nil
}

// Has проверяет, зарегистрировано ли правило.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[name]
	return ok
}

// Names возвращает имена всех правил по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rules возвращает все правила, отсортированные по имени.
func (r *Registry) Rules() []Rule {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, 0, len(names))
	for _, name := range names {
		out = append(out, r.rules[name])
	}
	return out
}

// Count возвращает количество правил.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Category возвращает категорию правила.
func (r *Registry) Category(name string) (domain.Category, error) {
	rule, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return rule.Category(), nil
}

// DecodeConfiguration разбирает конфигурацию job для правила name.
// Тип конфигурации определяется самим правилом.
func (r *Registry) DecodeConfiguration(name string, env *jobs.Envelope) (jobs.Configuration, error) {
	rule, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	var factory func() jobs.Configuration
	if rule.NewConfiguration() != nil {
		factory = rule.NewConfiguration
	}
	return jobs.Unwrap(env, name, factory)
}
