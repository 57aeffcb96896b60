package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
	"tavern-server/internal/interfaces"
)

const publishTimeout = 10 * time.Second

// rabbitMQPublisher broadcasts catalog change events on a fanout exchange so
// every running instance sees every mutation.
type rabbitMQPublisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

var _ interfaces.CatalogEventPublisher = (*rabbitMQPublisher)(nil)

// NewRabbitMQPublisher opens a channel and declares the fanout exchange.
func NewRabbitMQPublisher(conn *amqp.Connection, exchange string, logger *zap.Logger) (*rabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("catalog publisher: failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("catalog publisher: failed to declare exchange %q: %w", exchange, err)
	}
	return &rabbitMQPublisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger.Named("CatalogPublisher"),
	}, nil
}

// PublishCatalogChanged broadcasts one catalog mutation event.
func (p *rabbitMQPublisher) PublishCatalogChanged(ctx context.Context, event domain.CatalogEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("catalog publisher: failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(pubCtx,
		p.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now().UTC(),
		})
	if err != nil {
		return fmt.Errorf("catalog publisher: failed to publish: %w", err)
	}

	p.logger.Debug("Published catalog event",
		zap.String("entity", string(event.Entity)),
		zap.String("entityID", event.EntityID),
		zap.String("action", string(event.Action)))
	return nil
}

// Close releases the channel.
func (p *rabbitMQPublisher) Close() error {
	return p.channel.Close()
}
