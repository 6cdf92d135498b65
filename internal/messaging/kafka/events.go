package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "commerce.order.events"
	TopicPaymentResults  = "commerce.payment.results"
	TopicDeadLetterQueue = "commerce.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderReplayedAt    = "x-replayed-at"
)

// PaymentStatus — итог оплаты, присланный платёжным контуром.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentResult — входящее событие об итоге оплаты заказа.
type PaymentResult struct {
	OrderID    string        `json:"order_id"`
	Status     PaymentStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// ParsePaymentResult разбирает событие оплаты из сообщения.
func ParsePaymentResult(message *sarama.ConsumerMessage) (PaymentResult, error) {
	var result PaymentResult
	if err := json.Unmarshal(message.Value, &result); err != nil {
		return PaymentResult{}, fmt.Errorf("unmarshal payment result: %w", err)
	}

	result.OrderID = strings.TrimSpace(result.OrderID)
	result.Status = PaymentStatus(strings.ToLower(strings.TrimSpace(string(result.Status))))
	if result.OrderID == "" {
		return PaymentResult{}, fmt.Errorf("payment result without order_id")
	}
	switch result.Status {
	case PaymentSucceeded, PaymentFailed:
	default:
		return PaymentResult{}, fmt.Errorf("unknown payment status %q", result.Status)
	}
	return result, nil
}
