package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// CancelReasonPaymentFailed — причина отмены заказа по отказу оплаты.
const CancelReasonPaymentFailed = "payment_failed"

// OrderLifecycle — переходы заказа, которые запускает итог оплаты.
type OrderLifecycle interface {
	Complete(ctx context.Context, id string) (domain.Order, error)
	Cancel(ctx context.Context, id, reason string) (domain.Order, error)
}

// NewPaymentResultHandler переводит заказ по итогу оплаты: успех завершает его, отказ отменяет
// с возвратом резерва. Повторная доставка уже обработанного события не считается ошибкой.
func NewPaymentResultHandler(orders OrderLifecycle, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-results")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		result, err := ParsePaymentResult(message)
		if err != nil {
			return err
		}

		switch result.Status {
		case PaymentSucceeded:
			_, err = orders.Complete(ctx, result.OrderID)
		case PaymentFailed:
			_, err = orders.Cancel(ctx, result.OrderID, CancelReasonPaymentFailed)
		}

		if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrOrderNotFound) {
			logger.WithError(err).WithFields(log.Fields{
				"order_id": result.OrderID,
				"status":   result.Status,
			}).Info("payment result skipped")
			return nil
		}
		return err
	}
}
