package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			return errors.New("record must be keyed by aggregate id")
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope outboxEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || string(envelope.Payload) != `{"status":"PENDING"}` {
			return errors.New("unexpected envelope")
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerWithClient(mockProducer, testLogger()), "")

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventTypeOrderCreated,
		Payload:       []byte(`{"status":"PENDING"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerWithClient(mockProducer, testLogger()), TopicDeadLetterQueue)

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateTypeOrder,
		EventType:     domain.EventTypeOrderCancelled,
		Payload:       []byte(`{}`),
	})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var publisher *OutboxTopicPublisher
	err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "x"})
	require.ErrorIs(t, err, domain.ErrOutboxPublish)
}
