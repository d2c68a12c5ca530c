package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeExecutions Exchange = "mender.executions"
	ExchangeHealing    Exchange = "mender.healing"
	ExchangeDLQ        Exchange = "mender.dlq"
)

// Queues — имена очередей.
const (
	QueueExecutionsRequested Queue = "executions.requested"
	QueueExecutionsCompleted Queue = "executions.completed"
	QueueHealingCompleted    Queue = "healing.completed"
	QueueDLQExecutions       Queue = "dlq.executions"
)

// Routing keys.
const (
	RoutingKeyRequested     RoutingKey = "requested"
	RoutingKeyCompleted     RoutingKey = "completed"
	RoutingKeyDLQExecutions RoutingKey = "executions"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// Topology — полный набор объявлений брокера.
type Topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// DefaultTopology возвращает топологию Mender.
//
// Запросы на выполнение после повторной неудачи уходят в DLQ,
// события завершения просто накапливаются для внешних потребителей.
func DefaultTopology() Topology {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQExecutions),
	}

	return Topology{
		exchanges: []exchangeDecl{
			{ExchangeExecutions, amqp.ExchangeDirect},
			{ExchangeHealing, amqp.ExchangeDirect},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			{QueueExecutionsRequested, dlqArgs},
			{QueueExecutionsCompleted, nil},
			{QueueHealingCompleted, nil},
			{QueueDLQExecutions, nil},
		},
		bindings: []bindingDecl{
			{QueueExecutionsRequested, RoutingKeyRequested, ExchangeExecutions},
			{QueueExecutionsCompleted, RoutingKeyCompleted, ExchangeExecutions},
			{QueueHealingCompleted, RoutingKeyCompleted, ExchangeHealing},
			{QueueDLQExecutions, RoutingKeyDLQExecutions, ExchangeDLQ},
		},
	}
}

// Queues возвращает имена объявляемых очередей.
func (t Topology) Queues() []Queue {
	out := make([]Queue, 0, len(t.queues))
	for _, q := range t.queues {
		out = append(out, q.name)
	}
	return out
}

// SetupTopology объявляет обменники, очереди и привязки. Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := DefaultTopology()
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range t.exchanges {
			// durable, не auto-delete, не internal, без no-wait
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range t.queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range t.bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}
