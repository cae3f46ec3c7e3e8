package mq

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel — реализация Channel поверх RabbitMQ.
//
// Отправка идёт через default exchange (routing key = имя очереди),
// чтение — через basic.get без auto-ack, удаление — через ack delivery tag.
type AMQPChannel struct {
	conn   *Connection
	logger *slog.Logger
}

// NewAMQPChannel создаёт новый AMQPChannel.
func NewAMQPChannel(conn *Connection, logger *slog.Logger) *AMQPChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPChannel{conn: conn, logger: logger}
}

// Send публикует сообщение в очередь.
func (c *AMQPChannel) Send(ctx context.Context, queue Queue, msg *Message) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}

	return c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			"",            // default exchange
			string(queue), // routing key
			false,         // mandatory
			false,         // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", queue, err)
		}

		c.logger.Debug("published message",
			"queue", queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"try_number", msg.Retry.TryNumber,
		)
		return nil
	})
}

// Receive вычитывает сообщения по одному через basic.get.
func (c *AMQPChannel) Receive(ctx context.Context, queue Queue) iter.Seq2[*Delivery, error] {
	return func(yield func(*Delivery, error) bool) {
		for {
			if ctx.Err() != nil {
				return
			}

			var raw amqp.Delivery
			var ok bool
			err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
				var err error
				raw, ok, err = ch.Get(string(queue), false)
				return err
			})
			if err != nil {
				yield(nil, fmt.Errorf("get from %s: %w", queue, err))
				return
			}
			if !ok {
				// Очередь пуста
				return
			}

			delivery := &Delivery{
				Queue:  queue,
				Body:   raw.Body,
				Handle: DeleteHandle(strconv.FormatUint(raw.DeliveryTag, 10)),
			}
			if !yield(delivery, nil) {
				return
			}
		}
	}
}

// Delete подтверждает сообщение по delivery tag.
func (c *AMQPChannel) Delete(ctx context.Context, queue Queue, handle DeleteHandle) error {
	tag, err := strconv.ParseUint(string(handle), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}

	// Ack не должен зависеть от отмены ctx: сообщение уже обработано
	return c.conn.WithChannel(context.WithoutCancel(ctx), func(ch *amqp.Channel) error {
		if err := ch.Ack(tag, false); err != nil {
			return fmt.Errorf("ack %s/%d: %w", queue, tag, err)
		}
		return nil
	})
}
