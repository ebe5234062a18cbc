package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/shared/events"
)

// EventPublisher publishes events to Kafka. Delivery is asynchronous:
// Publish returns once the producer has accepted the message.
type EventPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   logger.Logger
	wg       sync.WaitGroup
	once     sync.Once
}

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

// NewEventPublisher creates a new Kafka event publisher
func NewEventPublisher(cfg *Config, log logger.Logger) (*EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Version = sarama.V3_3_1_0

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return NewEventPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewEventPublisherWithProducer wraps an existing producer
func NewEventPublisherWithProducer(producer sarama.AsyncProducer, topic string, log logger.Logger) *EventPublisher {
	p := &EventPublisher{
		producer: producer,
		topic:    topic,
		logger:   log,
	}

	p.wg.Add(2)
	go p.handleErrors()
	go p.handleSuccesses()

	return p
}

// Publish queues an event keyed by its aggregate id
func (p *EventPublisher) Publish(ctx context.Context, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.AggregateID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("eventType"), Value: []byte(event.EventType)},
			{Key: []byte("aggregateType"), Value: []byte(event.AggregateType)},
		},
		Timestamp: event.Timestamp,
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and closes the producer
func (p *EventPublisher) Close() error {
	p.once.Do(func() {
		p.producer.AsyncClose()
		p.wg.Wait()
	})
	return nil
}

func (p *EventPublisher) handleErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		p.logger.Error("Kafka producer error", "topic", perr.Msg.Topic, "error", perr.Err)
	}
}

func (p *EventPublisher) handleSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.logger.Debug("Kafka message delivered",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
	}
}
