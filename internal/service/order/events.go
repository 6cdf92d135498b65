package order

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// Event — полезная нагрузка outbox-события заказа.
type Event struct {
	EventType  string    `json:"event_type"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int64     `json:"quantity"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newOutboxMessage(order domain.Order, eventType, reason string) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(Event{
		EventType:  eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		Status:     string(order.Status),
		Reason:     reason,
		OccurredAt: order.UpdatedAt,
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}

	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
