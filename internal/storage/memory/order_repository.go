package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type orderRepository struct {
	*repositories
}

func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	if err := r.writable(); err != nil {
		return err
	}
	if _, exists := r.st.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrAlreadyExists)
	}
	r.st.orders[order.ID] = order
	return nil
}

func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.st.orders[id]
	if !ok || order.IsDeleted() {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepository) List(_ context.Context, limit int) ([]domain.Order, error) {
	return r.collect(func(domain.Order) bool { return true }, newestFirst, limit), nil
}

func (r *orderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.collect(func(o domain.Order) bool { return o.UserID == userID }, newestFirst, limit), nil
}

func (r *orderRepository) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	match := func(o domain.Order) bool {
		return o.Status == domain.OrderStatusPending && o.CreatedAt.Before(cutoff)
	}
	return r.collect(match, oldestFirst, limit), nil
}

func (r *orderRepository) HasPendingForProduct(_ context.Context, productID string) (bool, error) {
	for _, order := range r.st.orders {
		if !order.IsDeleted() && order.Status == domain.OrderStatusPending && order.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (r *orderRepository) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}
	order, ok := r.st.orders[id]
	if !ok || order.IsDeleted() {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return fmt.Errorf("%w: order %s is %s, expected %s", domain.ErrInvalidTransition, id, order.Status, from)
	}
	order.Status = to
	order.UpdatedAt = at
	r.st.orders[id] = order
	return nil
}

func (r *orderRepository) SoftDelete(_ context.Context, id string, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}
	order, ok := r.st.orders[id]
	if !ok || order.IsDeleted() {
		return domain.ErrOrderNotFound
	}
	deletedAt := at
	order.DeletedAt = &deletedAt
	order.UpdatedAt = at
	r.st.orders[id] = order
	return nil
}

func newestFirst(a, b domain.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func oldestFirst(a, b domain.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *orderRepository) collect(match func(domain.Order) bool, less func(a, b domain.Order) bool, limit int) []domain.Order {
	result := make([]domain.Order, 0)
	for _, order := range r.st.orders {
		if order.IsDeleted() || !match(order) {
			continue
		}
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

var (
	_ domain.OrderRepository         = (*orderRepository)(nil)
	_ domain.ProductRepository       = (*productRepository)(nil)
	_ domain.StockMovementRepository = (*stockMovementRepository)(nil)
)
