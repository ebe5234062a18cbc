package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/shared/events"
)

func TestPublish(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewAsyncProducer(t, cfg)

	var captured []byte
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "notification-events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "n-1" {
			return errors.New("unexpected key " + string(key))
		}
		captured, err = msg.Value.Encode()
		return err
	})

	publisher := NewEventPublisherWithProducer(producer, "notification-events", logger.NewNop())

	event, err := events.NewEvent("n-1", "Notification", events.NotificationSent, map[string]string{"type": "info"})
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), event))
	require.NoError(t, publisher.Close())
	require.NoError(t, publisher.Close())

	var decoded events.Event
	require.NoError(t, json.Unmarshal(captured, &decoded))
	assert.Equal(t, events.NotificationSent, decoded.EventType)
	assert.JSONEq(t, `{"type":"info"}`, string(decoded.Payload))
}

func TestPublishProducerError(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputAndFail(errors.New("broker down"))

	publisher := NewEventPublisherWithProducer(producer, "notification-events", logger.NewNop())

	event, err := events.NewEvent("n-2", "Notification", events.NotificationControlled, events.ControlPayload{Operation: "clear-all"})
	require.NoError(t, err)

	// Delivery failures surface on the error channel, not from Publish.
	assert.NoError(t, publisher.Publish(context.Background(), event))
	assert.NoError(t, publisher.Close())
}
