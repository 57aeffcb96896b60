package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tavern-server/internal/cache"
	"tavern-server/internal/catalog"
	"tavern-server/internal/domain"
)

// IndexRebuilder rebuilds the in-memory catalog index from fresh data.
type IndexRebuilder interface {
	RebuildIndex(ctx context.Context) (catalog.BuildReport, error)
}

// CatalogEventConsumer listens for catalog mutations published by other
// instances and refreshes the local cache and index. Each instance binds its
// own exclusive queue to the fanout exchange.
type CatalogEventConsumer struct {
	channel   *amqp.Channel
	queueName string
	cache     *cache.CatalogCache
	rebuilder IndexRebuilder
	logger    *zap.Logger
	done      chan struct{}
}

// NewCatalogEventConsumer opens a channel, declares an exclusive queue and
// binds it to the exchange.
func NewCatalogEventConsumer(
	conn *amqp.Connection,
	exchange string,
	catalogCache *cache.CatalogCache,
	rebuilder IndexRebuilder,
	logger *zap.Logger,
) (*CatalogEventConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("catalog consumer: failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("catalog consumer: failed to declare exchange %q: %w", exchange, err)
	}

	// Server-named, exclusive, auto-delete: the queue lives and dies with
	// this instance.
	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("catalog consumer: failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("catalog consumer: failed to bind queue: %w", err)
	}

	return &CatalogEventConsumer{
		channel:   ch,
		queueName: q.Name,
		cache:     catalogCache,
		rebuilder: rebuilder,
		logger:    logger.Named("CatalogConsumer"),
		done:      make(chan struct{}),
	}, nil
}

// StartConsuming blocks processing catalog events until the channel closes or
// Stop is called.
func (c *CatalogEventConsumer) StartConsuming() error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		true,        // auto-ack
		true,        // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("catalog consumer: failed to start consuming: %w", err)
	}
	c.logger.Info("Catalog event consumer started", zap.String("queue", c.queueName))

	for {
		select {
		case <-c.done:
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("catalog consumer: delivery channel closed")
			}
			c.handle(msg)
		}
	}
}

func (c *CatalogEventConsumer) handle(msg amqp.Delivery) {
	var event domain.CatalogEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error("Failed to unmarshal catalog event", zap.Error(err))
		return
	}

	ctx := context.Background()
	switch event.Entity {
	case domain.EntityCard:
		c.cache.InvalidateCard(ctx, event.EntityID)
	case domain.EntityNPC:
		c.cache.InvalidateNPC(ctx, event.EntityID)
	case domain.EntityConfig:
		c.cache.InvalidateConfig(ctx)
	default:
		c.logger.Warn("Unknown catalog event entity", zap.String("entity", string(event.Entity)))
		return
	}

	if event.Entity != domain.EntityConfig {
		if report, err := c.rebuilder.RebuildIndex(ctx); err != nil {
			c.logger.Error("Index rebuild from catalog event failed", zap.Error(err))
		} else {
			c.logger.Info("Index rebuilt from catalog event",
				zap.String("entity", string(event.Entity)),
				zap.String("entityID", event.EntityID),
				zap.Int("indexed", report.Indexed),
				zap.Int("dropped", report.Dropped))
		}
	}
}

// Stop terminates the consume loop and closes the channel.
func (c *CatalogEventConsumer) Stop() {
	close(c.done)
	if err := c.channel.Close(); err != nil {
		c.logger.Warn("Failed to close consumer channel", zap.Error(err))
	}
}
