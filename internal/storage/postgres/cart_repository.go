package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type cartRepository struct {
	*repositories
}

func (r *cartRepository) GetByUser(ctx context.Context, userID string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	return cart, nil
}

// CreateIfAbsent опирается на уникальность user_id: параллельные вызовы получают одну и ту же корзину.
func (r *cartRepository) CreateIfAbsent(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if err := r.writable(); err != nil {
		return domain.Cart{}, err
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO NOTHING
	`, cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt); err != nil {
		return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
	}
	return r.GetByUser(ctx, cart.UserID)
}

func (r *cartRepository) AddItemQuantity(ctx context.Context, cartID, productID string, qty int64, at time.Time) (domain.CartItem, error) {
	if err := r.writable(); err != nil {
		return domain.CartItem{}, err
	}

	var item domain.CartItem
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING cart_id, product_id, quantity, created_at
	`, cartID, productID, qty, at).Scan(&item.CartID, &item.ProductID, &item.Quantity, &item.CreatedAt)
	if err != nil {
		if hasSQLState(err, sqlStateForeignKeyViolation) {
			return domain.CartItem{}, domain.ErrCartNotFound
		}
		return domain.CartItem{}, fmt.Errorf("upsert cart item: %w", err)
	}

	if err := r.touch(ctx, cartID, at); err != nil {
		return domain.CartItem{}, err
	}
	return item, nil
}

func (r *cartRepository) SetItemQuantity(ctx context.Context, cartID, productID string, qty int64, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $3
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID, qty)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if err := requireAffected(res, domain.ErrCartItemNotFound); err != nil {
		return err
	}
	return r.touch(ctx, cartID, at)
}

func (r *cartRepository) RemoveItem(ctx context.Context, cartID, productID string, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if err := requireAffected(res, domain.ErrCartItemNotFound); err != nil {
		return err
	}
	return r.touch(ctx, cartID, at)
}

func (r *cartRepository) ClearItems(ctx context.Context, cartID string, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}

	if err := r.touch(ctx, cartID, at); err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, cartID string) error {
	if err := r.writable(); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return requireAffected(res, domain.ErrCartNotFound)
}

func (r *cartRepository) touch(ctx context.Context, cartID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, at)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return requireAffected(res, domain.ErrCartNotFound)
}

func (r *cartRepository) loadItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT cart_id, product_id, quantity, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position ASC
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.CartID, &item.ProductID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
