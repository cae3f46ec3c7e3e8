// Package delegator решает, какие tasks создать для entry и когда
// и в какую очередь их отправлять.
//
// Политика:
//   - валидации идут раньше конвертаций
//   - внутри категории — по возрастанию priority
//   - конвертация отправляется только после того, как все валидации
//     entry перешли в финальное состояние
package delegator

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/mq"
)

// Базовые priority категорий.
const (
	ValidationPriority = 100
	ConversionPriority = 200
)

var (
	// ErrDuplicateTask — имя task повторяется в рамках entry.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrNoTaskName — task без имени.
	ErrNoTaskName = errors.New("task name is required")
)

// TaskSpec — запрошенная клиентом task.
type TaskSpec struct {
	// Name — имя правила.
	Name string `json:"name"`

	// Configuration — конфигурация правила (jobs.Envelope в JSON).
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// CategoryFunc возвращает категорию правила по имени.
type CategoryFunc func(name string) (domain.Category, error)

// Plan создаёт PENDING tasks для entry.
//
// Priority назначается по категории и порядку объявления:
// валидации 100, 101, ...; конвертации 200, 201, ...
// Результат отсортирован по priority.
func Plan(entryID uuid.UUID, specs []TaskSpec, categoryOf CategoryFunc) ([]domain.Task, error) {
	now := time.Now()
	seen := make(map[string]bool, len(specs))
	next := map[domain.Category]int{
		domain.CategoryValidation: ValidationPriority,
		domain.CategoryConversion: ConversionPriority,
	}

	tasks := make([]domain.Task, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, ErrNoTaskName
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, spec.Name)
		}
		seen[spec.Name] = true

		category, err := categoryOf(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", spec.Name, err)
		}

		tasks = append(tasks, domain.Task{
			ID:            uuid.New(),
			EntryID:       entryID,
			Name:          spec.Name,
			Category:      category,
			Priority:      next[category],
			Configuration: spec.Configuration,
			Status:        domain.TaskStatusPending,
			CreatedAt:     now,
		})
		next[category]++
	}

	sortByPriority(tasks)
	return tasks, nil
}

// Ready возвращает PENDING tasks, которые можно отправлять сейчас.
//
// Валидации готовы сразу. Конвертации — только когда ни одна
// валидация entry не осталась в нефинальном состоянии.
func Ready(tasks []domain.Task) []domain.Task {
	validationsDone := true
	for _, t := range tasks {
		if t.Category == domain.CategoryValidation && !t.Status.IsTerminal() {
			validationsDone = false
			break
		}
	}

	var ready []domain.Task
	for _, t := range tasks {
		if t.Status != domain.TaskStatusPending {
			continue
		}
		if t.Category == domain.CategoryConversion && !validationsDone {
			continue
		}
		ready = append(ready, t)
	}

	sortByPriority(ready)
	return ready
}

// QueueFor возвращает очередь правила task.
func QueueFor(task domain.Task) mq.Queue {
	return mq.QueueNameFor(task.Category, task.Name)
}

func sortByPriority(tasks []domain.Task) {
	slices.SortStableFunc(tasks, func(a, b domain.Task) int {
		if a.Category.Stage() != b.Category.Stage() {
			return a.Category.Stage() - b.Category.Stage()
		}
		return a.Priority - b.Priority
	})
}
