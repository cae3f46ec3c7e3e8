package mq

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// MemoryChannel — реализация Channel в памяти процесса.
//
// Семантика та же, что у AMQPChannel: полученное сообщение невидимо
// для других потребителей, пока не удалено или не возвращено через Recover.
type MemoryChannel struct {
	mu       sync.Mutex
	queues   map[Queue][][]byte
	inflight map[DeleteHandle]inflightMessage
	seq      uint64
}

type inflightMessage struct {
	queue Queue
	body  []byte
}

// NewMemoryChannel создаёт пустой MemoryChannel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		queues:   make(map[Queue][][]byte),
		inflight: make(map[DeleteHandle]inflightMessage),
	}
}

// Send кладёт сообщение в конец очереди.
func (c *MemoryChannel) Send(ctx context.Context, queue Queue, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[queue] = append(c.queues[queue], body)
	return nil
}

// Push кладёт в очередь сырое тело (например, заведомо битое сообщение).
func (c *MemoryChannel) Push(queue Queue, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[queue] = append(c.queues[queue], body)
}

// Receive отдаёт сообщения из головы очереди, пока она не опустеет.
func (c *MemoryChannel) Receive(ctx context.Context, queue Queue) iter.Seq2[*Delivery, error] {
	return func(yield func(*Delivery, error) bool) {
		for {
			if ctx.Err() != nil {
				return
			}

			delivery, ok := c.pop(queue)
			if !ok {
				return
			}
			if !yield(delivery, nil) {
				return
			}
		}
	}
}

func (c *MemoryChannel) pop(queue Queue) (*Delivery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.queues[queue]
	if len(pending) == 0 {
		return nil, false
	}

	body := pending[0]
	c.queues[queue] = pending[1:]

	c.seq++
	handle := DeleteHandle(fmt.Sprintf("%s#%d", queue, c.seq))
	c.inflight[handle] = inflightMessage{queue: queue, body: body}

	return &Delivery{Queue: queue, Body: body, Handle: handle}, true
}

// Delete удаляет сообщение, находящееся в обработке.
func (c *MemoryChannel) Delete(_ context.Context, queue Queue, handle DeleteHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.inflight[handle]
	if !ok || msg.queue != queue {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	delete(c.inflight, handle)
	return nil
}

// Recover возвращает неудалённые сообщения в начало своих очередей
// (имитация повторной доставки брокером после падения потребителя).
func (c *MemoryChannel) Recover() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.inflight)
	for handle, msg := range c.inflight {
		c.queues[msg.queue] = append([][]byte{msg.body}, c.queues[msg.queue]...)
		delete(c.inflight, handle)
	}
	return n
}

// Len возвращает количество ожидающих сообщений в очереди.
func (c *MemoryChannel) Len(queue Queue) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[queue])
}

// InFlight возвращает количество полученных, но не удалённых сообщений.
func (c *MemoryChannel) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Peek возвращает ожидающие сообщения очереди без их получения.
func (c *MemoryChannel) Peek(queue Queue) ([]*Message, error) {
	c.mu.Lock()
	bodies := append([][]byte(nil), c.queues[queue]...)
	c.mu.Unlock()

	msgs := make([]*Message, 0, len(bodies))
	for _, body := range bodies {
		msg, err := Decode(body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
