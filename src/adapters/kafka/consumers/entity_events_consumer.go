package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"webinyframework/src/infra/kafka"
	"webinyframework/src/services/events"
)

// EntityEventsConsumer drops cached REST responses for every class that changed.
type EntityEventsConsumer struct {
	logger *slog.Logger
	cache  events.TagInvalidator
}

func NewEntityEventsConsumer(
	logger *slog.Logger,
	cache events.TagInvalidator,
) *EntityEventsConsumer {
	return &EntityEventsConsumer{
		logger: logger,
		cache:  cache,
	}
}

func (c *EntityEventsConsumer) Start(ctx context.Context, kafkaClient *kafka.KafkaClient, topic string) error {
	c.logger.Info("Starting entity events consumer", "topic", topic)

	return kafkaClient.Consumer(ctx, c.HandleMessages, topic)
}

// HandleMessages invalidates each changed class once per batch. Messages that can not be
// decoded are skipped, a cache failure fails the batch so it is delivered again.
func (c *EntityEventsConsumer) HandleMessages(ctx context.Context, messages []kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}

	classes := make([]string, 0)
	for _, msg := range messages {
		var event events.EntityEventMessage
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error("Failed to unmarshal entity event", "error", err, "key", msg.Key)
			continue
		}

		if event.Class == "" {
			c.logger.Warn("Skipping entity event without class", "key", msg.Key, "event_id", event.EventID)
			continue
		}

		if !slices.Contains(classes, event.Class) {
			classes = append(classes, event.Class)
		}
	}

	if len(classes) == 0 {
		return nil
	}

	if err := c.cache.InvalidateTags(ctx, classes...); err != nil {
		c.logger.Error("Failed to invalidate cache tags", "error", err, "classes", classes)
		return fmt.Errorf("failed to invalidate cache tags: %w", err)
	}

	c.logger.Debug("Processed entity events batch", "count", len(messages), "classes", classes)
	return nil
}
