package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"webinyframework/src/entity"
	"webinyframework/src/infra/kafka"
)

type MessageProducer interface {
	Producer(messages []kafka.Message, topic string) error
}

// EntityEventPublisher observes the entity manager and publishes its events to Kafka.
// Events are serialized while the entity is still owned by the caller and queued;
// Run sends them in batches.
type EntityEventPublisher struct {
	logger        *slog.Logger
	producer      MessageProducer
	topic         string
	batchSize     int
	flushInterval time.Duration
	queue         chan kafka.Message
	now           func() time.Time
}

func NewEntityEventPublisher(
	logger *slog.Logger,
	producer MessageProducer,
	topic string,
	batchSize int,
	flushInterval time.Duration,
) *EntityEventPublisher {
	batchSize = max(batchSize, 1)
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &EntityEventPublisher{
		logger:        logger,
		producer:      producer,
		topic:         topic,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		queue:         make(chan kafka.Message, batchSize*10),
		now:           time.Now,
	}
}

// OnEntityEvent queues the event. A full queue drops it with a warning rather than
// blocking the write that produced it.
func (p *EntityEventPublisher) OnEntityEvent(ctx context.Context, event entity.Event) {
	message, err := p.message(ctx, event)
	if err != nil {
		p.logger.Error("Failed to build entity event", "class", event.Class, "id", event.ID, "error", err)
		return
	}

	select {
	case p.queue <- message:
	default:
		p.logger.Warn("Entity event queue is full, dropping event", "class", event.Class, "id", event.ID, "event_type", event.Type)
	}
}

func (p *EntityEventPublisher) message(ctx context.Context, event entity.Event) (kafka.Message, error) {
	payload := EntityEventMessage{
		EventID:    uuid.NewString(),
		Type:       event.Type,
		Class:      event.Class,
		ID:         event.ID,
		OccurredAt: p.now().UTC(),
	}

	if event.Type != entity.EventDeleted && event.Entity != nil {
		data, err := event.Entity.ToArray(ctx, "*", 0)
		if err != nil {
			return kafka.Message{}, fmt.Errorf("EntityEventPublisher.message - extract: %w", err)
		}
		payload.Data = data
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("EntityEventPublisher.message - marshal: %w", err)
	}

	return kafka.Message{
		Key:     payload.MessageKey(),
		Value:   value,
		Headers: payload.Headers(),
	}, nil
}

// Run publishes queued events until ctx is cancelled, then flushes what is left.
func (p *EntityEventPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, p.batchSize)
	for {
		select {
		case message := <-p.queue:
			batch = append(batch, message)
			if len(batch) >= p.batchSize {
				batch = p.publish(batch)
			}

		case <-ticker.C:
			batch = p.publish(batch)

		case <-ctx.Done():
			for {
				select {
				case message := <-p.queue:
					batch = append(batch, message)
				default:
					p.publish(batch)
					return
				}
			}
		}
	}
}

// publish sends the batch and returns it emptied. Failed batches are logged and dropped.
func (p *EntityEventPublisher) publish(batch []kafka.Message) []kafka.Message {
	if len(batch) == 0 {
		return batch
	}

	if err := p.producer.Producer(batch, p.topic); err != nil {
		p.logger.Error("Failed to publish entity events", "topic", p.topic, "events_count", len(batch), "error", err)
	} else {
		p.logger.Debug("Published entity events", "topic", p.topic, "events_count", len(batch))
	}
	return batch[:0]
}
