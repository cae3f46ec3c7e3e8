package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareQueues объявляет durable очереди.
//
// Очереди правил объявляются по списку зарегистрированных правил,
// статические — всегда. Повторное объявление безопасно.
func DeclareQueues(ctx context.Context, conn *Connection, queues ...Queue) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q), // name
				true,      // durable
				false,     // delete when unused
				false,     // exclusive
				false,     // no-wait
				nil,       // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(ruleQueues []Queue) string {
	var b strings.Builder
	b.WriteString("Feedline RabbitMQ topology (default exchange):\n")
	fmt.Fprintf(&b, "  %s  consumer: orchestrator (delegation)\n", QueueDelegation)
	fmt.Fprintf(&b, "  %s  consumer: orchestrator (results)\n", QueueResults)
	for _, q := range ruleQueues {
		fmt.Fprintf(&b, "  %s  consumer: worker\n", q)
	}
	fmt.Fprintf(&b, "  %s  manual processing\n", QueueDLQ)
	return b.String()
}
