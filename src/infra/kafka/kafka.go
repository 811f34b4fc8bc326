package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

const retryDelay = 5 * time.Second

var ErrNoConsumerGroup = errors.New("kafka client has no consumer group")

// KafkaClient bundles a sync producer with an optional consumer group.
type KafkaClient struct {
	logger       *slog.Logger
	consumer     sarama.ConsumerGroup
	producer     sarama.SyncProducer
	batchSize    int
	batchTimeout time.Duration
}

type Message struct {
	Key      string
	Value    []byte
	Headers  map[string]string
	internal *sarama.ConsumerMessage
}

type Handler func(ctx context.Context, messages []Message) error

// NewKafkaClient connects to the brokers, a comma separated list. An empty groupID
// creates a producer only client.
func NewKafkaClient(logger *slog.Logger, brokers string, groupID string, batchSize int) (*KafkaClient, error) {
	brokerList := strings.Split(brokers, ",")
	batchSize = max(batchSize, 1)

	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0

	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Session.Timeout = 30 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 10 * time.Second
	config.Consumer.MaxProcessingTime = 30 * time.Second
	config.ChannelBufferSize = batchSize * 2

	// events of one entity share a key, so hash partitioning keeps them ordered
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.MaxMessageBytes = 1024 * 1024

	var consumer sarama.ConsumerGroup
	if groupID != "" {
		group, err := sarama.NewConsumerGroup(brokerList, groupID, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer group: %w", err)
		}
		consumer = group
	}

	producer, err := sarama.NewSyncProducer(brokerList, config)
	if err != nil {
		if consumer != nil {
			consumer.Close()
		}
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	logger.Info("kafka client initialized", "brokers", brokers, "group", groupID, "batch_size", batchSize)
	return NewKafkaClientFrom(logger, producer, consumer, batchSize), nil
}

// NewKafkaClientFrom wraps existing sarama clients. consumer may be nil.
func NewKafkaClientFrom(logger *slog.Logger, producer sarama.SyncProducer, consumer sarama.ConsumerGroup, batchSize int) *KafkaClient {
	return &KafkaClient{
		logger:       logger,
		producer:     producer,
		consumer:     consumer,
		batchSize:    max(batchSize, 1),
		batchTimeout: 2 * time.Second,
	}
}

// WithBatchTimeout sets how long a partial batch waits before it is handled.
func (k *KafkaClient) WithBatchTimeout(timeout time.Duration) *KafkaClient {
	k.batchTimeout = timeout
	return k
}

// Consumer blocks consuming topic in batches until ctx is cancelled.
func (k *KafkaClient) Consumer(ctx context.Context, handler Handler, topic string) error {
	if k.consumer == nil {
		return ErrNoConsumerGroup
	}

	consumerHandler := k.groupHandler(handler, topic)

	for {
		if err := k.consumer.Consume(ctx, []string{topic}, consumerHandler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			k.logger.Error("failed to consume topic", "topic", topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}
		if ctx.Err() != nil {
			k.logger.Info("kafka consumer stopped", "topic", topic)
			return nil
		}
	}
}

// Producer sends the batch synchronously. Either every message is acknowledged or an error is returned.
func (k *KafkaClient) Producer(messages []Message, topic string) error {
	if len(messages) == 0 {
		return nil
	}

	kafkaMessages := make([]*sarama.ProducerMessage, len(messages))
	for i, msg := range messages {
		kafkaMessages[i] = toProducerMessage(msg, topic)
	}

	if err := k.producer.SendMessages(kafkaMessages); err != nil {
		var producerErrors sarama.ProducerErrors
		if errors.As(err, &producerErrors) {
			return fmt.Errorf("batch send failed: %d/%d messages failed: %w", len(producerErrors), len(messages), producerErrors[0].Err)
		}
		return fmt.Errorf("batch send failed: %w", err)
	}

	k.logger.Debug("batch sent", "topic", topic, "messages", len(messages))
	return nil
}

func (k *KafkaClient) groupHandler(handler Handler, topic string) *consumerGroupHandler {
	return &consumerGroupHandler{
		logger:       k.logger.With("topic", topic),
		handler:      handler,
		batchSize:    k.batchSize,
		batchTimeout: k.batchTimeout,
	}
}

func (k *KafkaClient) Close() error {
	var errs []error

	if k.consumer != nil {
		if err := k.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
		}
	}

	if k.producer != nil {
		if err := k.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
		}
	}

	return errors.Join(errs...)
}

func toProducerMessage(msg Message, topic string) *sarama.ProducerMessage {
	producerMessage := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Value),
	}
	for name, value := range msg.Headers {
		producerMessage.Headers = append(producerMessage.Headers, sarama.RecordHeader{
			Key:   []byte(name),
			Value: []byte(value),
		})
	}
	return producerMessage
}

func fromConsumerMessage(message *sarama.ConsumerMessage) Message {
	headers := make(map[string]string, len(message.Headers))
	for _, header := range message.Headers {
		if header != nil {
			headers[string(header.Key)] = string(header.Value)
		}
	}
	return Message{
		Key:      string(message.Key),
		Value:    message.Value,
		Headers:  headers,
		internal: message,
	}
}

type consumerGroupHandler struct {
	logger       *slog.Logger
	handler      Handler
	batchSize    int
	batchTimeout time.Duration
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Debug("kafka consumer group session setup", "batch_size", h.batchSize)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Debug("kafka consumer group session cleanup")
	return nil
}

// ConsumeClaim collects messages until the batch is full or the timeout fires.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	messages := make([]Message, 0, h.batchSize)
	timer := time.NewTimer(h.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				h.processBatch(session, messages)
				return nil
			}

			messages = append(messages, fromConsumerMessage(message))
			if len(messages) >= h.batchSize {
				h.processBatch(session, messages)
				messages = messages[:0]
				timer.Reset(h.batchTimeout)
			}

		case <-timer.C:
			h.processBatch(session, messages)
			messages = messages[:0]
			timer.Reset(h.batchTimeout)

		case <-session.Context().Done():
			h.processBatch(session, messages)
			return nil
		}
	}
}

// processBatch marks the batch only when the handler succeeds, failed batches are redelivered.
func (h *consumerGroupHandler) processBatch(session sarama.ConsumerGroupSession, messages []Message) {
	if len(messages) == 0 {
		return
	}

	if err := h.handler(session.Context(), messages); err != nil {
		h.logger.Error("handler failed for batch", "messages", len(messages), "error", err)
		return
	}

	for _, msg := range messages {
		if msg.internal != nil {
			session.MarkMessage(msg.internal, "")
		}
	}
}
