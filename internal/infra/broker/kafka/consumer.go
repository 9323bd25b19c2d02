package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

const retryDelay = time.Second

// Consumer runs a consumer group and marks each message once its handler returns.
// A handler error ends the claim so the session restarts from the last marked
// offset and the failed message is delivered again.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: g, handler: handler, logger: logger}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler, logger: c.logger, retryDelay: retryDelay}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler    MessageHandler
	logger     *slog.Logger
	retryDelay time.Duration
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handler.Handle(sess.Context(), message); err != nil {
			h.logger.Warn("kafka message handling failed",
				"topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err)
			// nothing past the failed offset is marked
			select {
			case <-time.After(h.retryDelay):
			case <-sess.Context().Done():
			}
			return err
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

// PayloadHandler consumes raw message values.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, payload []byte) error
}

// PayloadAdapter feeds consumed message values to a PayloadHandler.
type PayloadAdapter struct {
	Handler PayloadHandler
}

func (a PayloadAdapter) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return a.Handler.HandlePayload(ctx, msg.Value)
}
