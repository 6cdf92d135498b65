package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const orderColumns = `id, user_id, product_id, quantity, status, created_at, updated_at, deleted_at`

type orderRepository struct {
	*repositories
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	if err := r.writable(); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		order.ID, order.UserID, order.ProductID, order.Quantity, string(order.Status),
		order.CreatedAt, order.UpdatedAt, order.DeletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	query, args := withLimit(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, nil, limit)
	return r.query(ctx, query, args...)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	query, args := withLimit(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
	`, []any{userID}, limit)
	return r.query(ctx, query, args...)
}

func (r *orderRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	query, args := withLimit(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1 AND created_at < $2 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, []any{string(domain.OrderStatusPending), cutoff}, limit)
	return r.query(ctx, query, args...)
}

func (r *orderRepository) HasPendingForProduct(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM orders
			WHERE product_id = $1 AND status = $2 AND deleted_at IS NULL
		)
	`, productID, string(domain.OrderStatusPending)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending orders: %w", err)
	}
	return exists, nil
}

// UpdateStatus — compare-and-set по текущему статусу: из двух конкурентных переходов
// из одного состояния применяется только первый.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $3,
		    updated_at = $4
		WHERE id = $1
		  AND status = $2
		  AND deleted_at IS NULL
	`, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.q.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("check order status: %w", err)
	}
	return fmt.Errorf("%w: order %s is %s, expected %s", domain.ErrInvalidTransition, id, current, from)
}

func (r *orderRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET deleted_at = $2,
		    updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("soft delete order: %w", err)
	}
	return requireAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		status    string
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &order.ProductID, &order.Quantity, &status,
		&order.CreatedAt, &order.UpdatedAt, &deletedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		order.DeletedAt = &t
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
