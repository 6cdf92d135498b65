package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

const productColumns = `id, name, price, quantity, created_at, updated_at`

type productRepository struct {
	*repositories
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	if err := r.writable(); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, product.ID, product.Name, product.Price, product.Quantity, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product %s already exists: %w", product.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := scanProduct(r.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// GetForUpdate блокирует строку товара до конца транзакции; резервы по товару ждут фиксации.
func (r *productRepository) GetForUpdate(ctx context.Context, id string) (domain.Product, error) {
	if err := r.writable(); err != nil {
		return domain.Product{}, err
	}

	product, err := scanProduct(r.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product for update: %w", err)
	}
	return product, nil
}

func (r *productRepository) List(ctx context.Context, limit int) ([]domain.Product, error) {
	query, args := withLimit(`
		SELECT `+productColumns+`
		FROM products
		ORDER BY created_at DESC, id DESC
	`, nil, limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	if err := r.writable(); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2,
		    price = $3,
		    updated_at = $4
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	if err := r.writable(); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

// ApplyDelta меняет остаток одним условным UPDATE. Строка блокируется до конца транзакции,
// а конкурентный UPDATE после ожидания перепроверяет условие на свежей версии строки.
func (r *productRepository) ApplyDelta(ctx context.Context, id string, delta int64, at time.Time) (int64, error) {
	if err := r.writable(); err != nil {
		return 0, err
	}

	var quantity int64
	err := r.q.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2,
		    updated_at = $3
		WHERE id = $1
		  AND quantity + $2 >= 0
		RETURNING quantity
	`, id, delta, at).Scan(&quantity)
	if err == nil {
		return quantity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("apply stock delta: %w", err)
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return 0, domain.ErrProductNotFound
	}
	return 0, domain.ErrInsufficientStock
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	err := row.Scan(
		&product.ID, &product.Name, &product.Price, &product.Quantity,
		&product.CreatedAt, &product.UpdatedAt,
	)
	return product, err
}

// requireAffected возвращает notFound, если запрос не затронул ни одной строки.
func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

type stockMovementRepository struct {
	*repositories
}

func (r *stockMovementRepository) Append(ctx context.Context, movement domain.StockMovement) error {
	if err := r.writable(); err != nil {
		return err
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, product_id, delta, reason, order_id, quantity_after, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		movement.ID, movement.ProductID, movement.Delta, string(movement.Reason),
		movement.OrderID, movement.QuantityAfter, movement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (r *stockMovementRepository) ListByProduct(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	query, args := withLimit(`
		SELECT id, product_id, delta, reason, order_id, quantity_after, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
	`, []any{productID}, limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0)
	for rows.Next() {
		var (
			movement domain.StockMovement
			reason   string
		)
		if err := rows.Scan(
			&movement.ID, &movement.ProductID, &movement.Delta, &reason,
			&movement.OrderID, &movement.QuantityAfter, &movement.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		movement.Reason = domain.StockReason(reason)
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}
	return movements, nil
}

var (
	_ domain.ProductRepository       = (*productRepository)(nil)
	_ domain.StockMovementRepository = (*stockMovementRepository)(nil)
)
