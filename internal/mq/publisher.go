package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Mender/internal/domain"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishExecutionRequested ставит выполнение в очередь.
// Потребитель: mender-worker.
func (p *Publisher) PublishExecutionRequested(ctx context.Context, payload ExecutionRequestedPayload) error {
	msg := newMessage(MessageTypeExecutionRequested, payload)
	return p.Publish(ctx, ExchangeExecutions, RoutingKeyRequested, msg)
}

// PublishExecutionCompleted публикует итог выполнения.
func (p *Publisher) PublishExecutionCompleted(ctx context.Context, r *domain.WorkflowExecutionResult) error {
	msg := newMessage(MessageTypeExecutionCompleted, ExecutionCompleted(r))
	return p.Publish(ctx, ExchangeExecutions, RoutingKeyCompleted, msg)
}

// PublishBatchCompleted публикует итог пакета.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, b *domain.BatchExecutionResult) error {
	msg := newMessage(MessageTypeExecutionCompleted, BatchCompleted(b))
	return p.Publish(ctx, ExchangeExecutions, RoutingKeyCompleted, msg)
}

// PublishHealingCompleted публикует итог сессии лечения.
func (p *Publisher) PublishHealingCompleted(ctx context.Context, s *domain.HealingSession) error {
	msg := newMessage(MessageTypeHealingCompleted, HealingCompleted(s))
	return p.Publish(ctx, ExchangeHealing, RoutingKeyCompleted, msg)
}
