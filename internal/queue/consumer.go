package queue

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"kitchen_requests/internal/logger"
)

// Handler processes one decoded status change.
type Handler func(ctx context.Context, msg StatusChange) error

// Consumer reads status changes from Kafka. It stands in for a kitchen display.
type Consumer struct {
	r       *kafka.Reader
	handler Handler
	log     *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, handler Handler, log *logger.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		handler: handler,
		log:     log.With("service", "StatusConsumer"),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run blocks until ctx is cancelled or the reader fails. Offsets are committed only
// after the handler returned nil.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error("consumer fetch", "err", err)
			}
			return
		}

		var msg StatusChange
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.log.Warn("consumer unmarshal", "offset", m.Offset, "err", err)
			c.commit(ctx, m)
			continue
		}
		if err := msg.Validate(); err != nil {
			c.log.Warn("consumer invalid message", "offset", m.Offset, "err", err)
			c.commit(ctx, m)
			continue
		}

		if err := c.handler(ctx, msg); err != nil {
			// Not committed: redelivered after a rebalance or restart.
			c.log.Error("consumer handler", "request_id", msg.RequestID, "err", err)
			continue
		}
		c.commit(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Warn("consumer commit", "offset", m.Offset, "err", err)
	}
}
