package mq

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/shaiso/Feedline/internal/domain"
)

// Queue — имя очереди.
type Queue string

// Статические очереди.
const (
	// QueueDelegation — entries, для которых нужно отправить tasks.
	QueueDelegation Queue = "entries.delegation"

	// QueueResults — результаты выполнения tasks.
	QueueResults Queue = "tasks.results"

	// QueueDLQ — jobs, у которых исчерпаны попытки (для ручного разбора).
	QueueDLQ Queue = "dlq.jobs"
)

// ErrUnknownHandle — delete handle не соответствует ни одному сообщению в обработке.
var ErrUnknownHandle = errors.New("unknown delete handle")

// QueueNameFor возвращает имя очереди правила.
//
// Единственное место, где формируется имя очереди правила:
// и отправитель, и воркер обязаны пользоваться этой функцией.
func QueueNameFor(category domain.Category, rule string) Queue {
	return Queue(fmt.Sprintf("rules.%s.%s", category, rule))
}

// StaticQueues возвращает очереди, не зависящие от набора правил.
func StaticQueues() []Queue {
	return []Queue{QueueDelegation, QueueResults, QueueDLQ}
}

// DeleteHandle — непрозрачный идентификатор полученного сообщения.
type DeleteHandle string

// Delivery — полученное из очереди сообщение.
type Delivery struct {
	// Queue — очередь, из которой получено сообщение.
	Queue Queue

	// Body — сырое тело сообщения.
	Body []byte

	// Handle — нужен для удаления сообщения из очереди.
	Handle DeleteHandle
}

// Channel — абстракция над именованными очередями.
//
// Доставка at-least-once: полученное сообщение остаётся за потребителем,
// пока тот явно не вызовет Delete.
type Channel interface {
	// Send отправляет сообщение в очередь.
	Send(ctx context.Context, queue Queue, msg *Message) error

	// Receive лениво вычитывает доступные сообщения.
	// Последовательность заканчивается, когда очередь пуста.
	// Ошибка доставки отдаётся как (nil, err) и завершает последовательность.
	Receive(ctx context.Context, queue Queue) iter.Seq2[*Delivery, error]

	// Delete подтверждает обработку и удаляет сообщение.
	Delete(ctx context.Context, queue Queue, handle DeleteHandle) error
}
