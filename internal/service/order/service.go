package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
	"github.com/vladislavdragonenkov/commerce/internal/service/stock"
)

// Причины отмены заказа для событий и метрик.
const (
	CancelReasonUser     = "user"
	CancelReasonExpired  = "expired"
	CancelReasonReplaced = "replaced"
)

const defaultListLimit = 100

// CreateOrderRequest — прямое создание заказа без корзины.
type CreateOrderRequest struct {
	UserID    string
	ProductID string
	Quantity  int64
	// Status — начальный статус; пустой означает PENDING, CANCELLED запрещён.
	Status string
}

// Service создаёт заказы и ведёт их жизненный цикл.
type Service struct {
	coord   *coordinator.Coordinator
	ledger  *stock.Ledger
	metrics *metrics.CommerceMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewService создаёт сервис заказов.
func NewService(coord *coordinator.Coordinator, ledger *stock.Ledger, m *metrics.CommerceMetrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	return &Service{
		coord:   coord,
		ledger:  ledger,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder резервирует остаток и создаёт заказ одной транзакцией.
// При нехватке остатка ничего не сохраняется.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return domain.Order{}, err
	}
	if status == domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: order cannot be created as %s", domain.ErrInvalidStatus, status)
	}
	if err := validateLine(req.UserID, req.ProductID, req.Quantity); err != nil {
		return domain.Order{}, err
	}

	var created domain.Order
	err = s.coord.Do(ctx, "order.create", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		created, err = s.createWithin(ctx, repos, req.UserID, req.ProductID, req.Quantity, status)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.OrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id":   created.ID,
		"user_id":    created.UserID,
		"product_id": created.ProductID,
		"quantity":   created.Quantity,
		"status":     created.Status,
	}).Info("order created")
	return created, nil
}

// Checkout оформляет корзину: по одному PENDING-заказу на позицию, корзина очищается.
// Позиции резервируются по возрастанию идентификатора товара, поэтому встречные оформления
// блокируют строки товаров в одном порядке.
func (s *Service) Checkout(ctx context.Context, userID string) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUserRequired
	}

	var orders []domain.Order
	err := s.coord.Do(ctx, "cart.checkout", func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		items := append([]domain.CartItem(nil), cart.Items...)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		created := make([]domain.Order, 0, len(items))
		for _, item := range items {
			order, err := s.createWithin(ctx, repos, userID, item.ProductID, item.Quantity, domain.OrderStatusPending)
			if err != nil {
				return fmt.Errorf("checkout product %s: %w", item.ProductID, err)
			}
			created = append(created, order)
		}
		if err := repos.Carts().ClearItems(ctx, cart.ID, s.now()); err != nil {
			return err
		}
		orders = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	for range orders {
		s.metrics.OrderCreated()
	}
	s.logger.WithFields(log.Fields{
		"user_id": userID,
		"orders":  len(orders),
	}).Info("cart checked out")
	return orders, nil
}

// Get возвращает заказ.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	var order domain.Order
	err := s.coord.Read(ctx, "order.get", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		order, err = repos.Orders().Get(ctx, id)
		return err
	})
	return order, err
}

// List возвращает заказы, новые первыми.
func (s *Service) List(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var orders []domain.Order
	err := s.coord.Read(ctx, "order.list", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		orders, err = repos.Orders().List(ctx, limit)
		return err
	})
	return orders, err
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUserRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var orders []domain.Order
	err := s.coord.Read(ctx, "order.list_by_user", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		orders, err = repos.Orders().ListByUser(ctx, userID, limit)
		return err
	})
	return orders, err
}

// Complete подтверждает оплату: PENDING → COMPLETED. Остаток не меняется.
func (s *Service) Complete(ctx context.Context, id string) (domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	var completed domain.Order
	err := s.coord.Do(ctx, "order.complete", func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := order.Transition(domain.OrderStatusCompleted, s.now()); err != nil {
			return err
		}
		if err := repos.Orders().UpdateStatus(ctx, id, domain.OrderStatusPending, order.Status, order.UpdatedAt); err != nil {
			return err
		}
		if err := s.enqueue(ctx, repos, order, domain.EventTypeOrderCompleted, ""); err != nil {
			return err
		}
		completed = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.OrderCompleted()
	s.logger.WithField("order_id", id).Info("order completed")
	return completed, nil
}

// Cancel отменяет PENDING-заказ и возвращает резерв на склад в той же транзакции.
// Повторная отмена возвращает ErrInvalidTransition и ничего не возвращает на склад.
func (s *Service) Cancel(ctx context.Context, id, reason string) (domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if reason == "" {
		reason = CancelReasonUser
	}

	var cancelled domain.Order
	err := s.coord.Do(ctx, "order.cancel", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		cancelled, err = s.cancelWithin(ctx, repos, id, reason)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.OrderCancelled(reason)
	s.logger.WithFields(log.Fields{
		"order_id": id,
		"reason":   reason,
	}).Info("order cancelled")
	return cancelled, nil
}

// Replace отменяет заказ и создаёт вместо него новый PENDING-заказ того же пользователя.
func (s *Service) Replace(ctx context.Context, id, productID string, qty int64) (domain.Order, error) {
	if strings.TrimSpace(productID) == "" {
		return domain.Order{}, domain.ErrProductRequired
	}
	return s.replace(ctx, "order.replace", id, productID, qty)
}

// ChangeQuantity пересоздаёт заказ с тем же товаром и новым количеством.
func (s *Service) ChangeQuantity(ctx context.Context, id string, qty int64) (domain.Order, error) {
	return s.replace(ctx, "order.change_quantity", id, "", qty)
}

// Delete административно удаляет заказ. Остаток не возвращается.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrOrderIDRequired
	}
	err := s.coord.Do(ctx, "order.delete", func(ctx context.Context, repos domain.Repositories) error {
		return repos.Orders().SoftDelete(ctx, id, s.now())
	})
	if err != nil {
		return err
	}
	s.logger.WithField("order_id", id).Info("order deleted")
	return nil
}

// ExpirePending отменяет PENDING-заказы, созданные раньше before, каждый в своей транзакции.
// Заказы, которые успели завершить или удалить, пропускаются.
func (s *Service) ExpirePending(ctx context.Context, before time.Time, limit int) (int, error) {
	var pending []domain.Order
	err := s.coord.Read(ctx, "order.list_pending", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		pending, err = repos.Orders().ListPendingBefore(ctx, before, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, order := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := s.Cancel(ctx, order.ID, CancelReasonExpired)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrOrderNotFound):
		default:
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to expire order")
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
		}
	}
	return expired, errors.Join(errs...)
}

func (s *Service) replace(ctx context.Context, operation, id, productID string, qty int64) (domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	if qty <= 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	var replacement domain.Order
	err := s.coord.Do(ctx, operation, func(ctx context.Context, repos domain.Repositories) error {
		previous, err := s.cancelWithin(ctx, repos, id, CancelReasonReplaced)
		if err != nil {
			return err
		}
		target := productID
		if target == "" {
			target = previous.ProductID
		}
		replacement, err = s.createWithin(ctx, repos, previous.UserID, target, qty, domain.OrderStatusPending)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.OrderCancelled(CancelReasonReplaced)
	s.metrics.OrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id":       id,
		"replacement_id": replacement.ID,
	}).Info("order replaced")
	return replacement, nil
}

func (s *Service) createWithin(ctx context.Context, repos domain.Repositories, userID, productID string, qty int64, status domain.OrderStatus) (domain.Order, error) {
	now := s.now()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	if _, err := s.ledger.Reserve(ctx, repos, productID, qty, order.ID); err != nil {
		return domain.Order{}, err
	}
	if err := repos.Orders().Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	if err := s.enqueue(ctx, repos, order, domain.EventTypeOrderCreated, ""); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) cancelWithin(ctx context.Context, repos domain.Repositories, id, reason string) (domain.Order, error) {
	order, err := repos.Orders().Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := order.Transition(domain.OrderStatusCancelled, s.now()); err != nil {
		return domain.Order{}, err
	}
	if err := repos.Orders().UpdateStatus(ctx, id, domain.OrderStatusPending, order.Status, order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	_, err = s.ledger.Release(ctx, repos, order.ProductID, order.Quantity, order.ID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		s.logger.WithFields(log.Fields{
			"order_id":   id,
			"product_id": order.ProductID,
			"quantity":   order.Quantity,
		}).Warn("product is gone, reservation is not returned")
	case err != nil:
		return domain.Order{}, fmt.Errorf("release stock: %w", err)
	}
	if err := s.enqueue(ctx, repos, order, domain.EventTypeOrderCancelled, reason); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *Service) enqueue(ctx context.Context, repos domain.Repositories, order domain.Order, eventType, reason string) error {
	msg, err := newOutboxMessage(order, eventType, reason)
	if err != nil {
		return err
	}
	if _, err := repos.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

func validateLine(userID, productID string, qty int64) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return domain.ErrUserRequired
	case strings.TrimSpace(productID) == "":
		return domain.ErrProductRequired
	case qty <= 0:
		return domain.ErrInvalidQuantity
	}
	return nil
}
