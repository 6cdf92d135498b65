package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, остаток уже зарезервирован, оплата не подтверждена.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusCompleted: оплата подтверждена. Терминальный статус.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled: заказ отменён, резерв возвращён на склад. Терминальный статус.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// statusAliases: устаревшие имена статусов из прежних версий схемы.
var statusAliases = map[string]OrderStatus{
	"PAID":     OrderStatusCompleted,
	"CANCELED": OrderStatusCancelled,
}

// ParseOrderStatus разбирает статус из внешнего ввода. Пустая строка означает PENDING.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return OrderStatusPending, nil
	}

	switch status := OrderStatus(value); status {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return status, nil
	}
	if status, ok := statusAliases[value]; ok {
		return status, nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода: только PENDING → COMPLETED | CANCELLED.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderStatusPending {
		return false
	}
	return next == OrderStatusCompleted || next == OrderStatusCancelled
}

// Order: неизменяемая по товару и количеству запись заказа.
type Order struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int64
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	// DeletedAt заполняется административным удалением.
	DeletedAt *time.Time
}

// Transition переводит заказ в следующий статус или возвращает ErrInvalidTransition.
func (o *Order) Transition(next OrderStatus, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// IsDeleted сообщает, что заказ удалён административно.
func (o *Order) IsDeleted() bool {
	return o.DeletedAt != nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.UserID) == "" {
		errs = append(errs, ErrUserRequired)
	}
	if strings.TrimSpace(o.ProductID) == "" {
		errs = append(errs, ErrProductRequired)
	}
	if o.Quantity <= 0 {
		errs = append(errs, ErrInvalidQuantity)
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
	default:
		errs = append(errs, ErrInvalidStatus)
	}

	return errs
}
