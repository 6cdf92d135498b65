package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
)

var errUnsupported = errors.New("unsupported dlq message")

type replayRecord struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

// outboxEnvelope повторяет формат, в котором outbox-воркер публикует события.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

type outboxFailure struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// decodeDeadLetter восстанавливает исходную запись из сообщения DLQ.
//
// Consumer кладёт в DLQ исходное значение и помечает его заголовком с исходным топиком;
// такие записи возвращаются как есть. Outbox-воркер кладёт конверт, внутри которого лежит
// описание сбоя с исходным payload; из него собирается новый конверт для eventsTopic.
func decodeDeadLetter(msg *sarama.ConsumerMessage, eventsTopic string, now time.Time) (replayRecord, error) {
	replayedAt := now.UTC().Format(time.RFC3339)

	if topic := header(msg, kafka.HeaderOriginalTopic); topic != "" {
		if len(msg.Value) == 0 {
			return replayRecord{}, fmt.Errorf("%w: empty value for topic %s", errUnsupported, topic)
		}
		return replayRecord{
			topic:   topic,
			key:     string(msg.Key),
			value:   msg.Value,
			headers: map[string]string{kafka.HeaderReplayedAt: replayedAt},
		}, nil
	}

	var envelope outboxEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayRecord{}, fmt.Errorf("%w: neither consumer nor outbox format", errUnsupported)
	}
	var failure outboxFailure
	if err := json.Unmarshal(envelope.Payload, &failure); err != nil {
		return replayRecord{}, fmt.Errorf("%w: decode outbox failure: %v", errUnsupported, err)
	}
	if len(failure.Payload) == 0 {
		return replayRecord{}, fmt.Errorf("%w: outbox failure %s has no event payload", errUnsupported, envelope.ID)
	}

	restored := outboxEnvelope{
		ID:            firstNonBlank(failure.OutboxID, envelope.ID),
		AggregateType: firstNonBlank(failure.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonBlank(failure.AggregateID, envelope.AggregateID),
		EventType:     firstNonBlank(failure.EventType, envelope.EventType),
		Payload:       failure.Payload,
		PublishedAt:   now.UTC(),
	}
	value, err := json.Marshal(restored)
	if err != nil {
		return replayRecord{}, fmt.Errorf("encode replayed envelope: %w", err)
	}

	return replayRecord{
		topic: eventsTopic,
		key:   firstNonBlank(restored.AggregateID, restored.ID),
		value: value,
		headers: map[string]string{
			kafka.HeaderEventType:  restored.EventType,
			kafka.HeaderReplayedAt: replayedAt,
		},
	}, nil
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
