package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type productRepository struct {
	*repositories
}

func (r *productRepository) Create(_ context.Context, product domain.Product) error {
	if err := r.writable(); err != nil {
		return err
	}
	if _, exists := r.st.products[product.ID]; exists {
		return fmt.Errorf("product %s already exists: %w", product.ID, domain.ErrAlreadyExists)
	}
	r.st.products[product.ID] = product
	return nil
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	product, ok := r.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// GetForUpdate совпадает с Get: пишущие области хранилища и так выполняются по одной.
func (r *productRepository) GetForUpdate(ctx context.Context, id string) (domain.Product, error) {
	if err := r.writable(); err != nil {
		return domain.Product{}, err
	}
	return r.Get(ctx, id)
}

func (r *productRepository) List(_ context.Context, limit int) ([]domain.Product, error) {
	result := make([]domain.Product, 0, len(r.st.products))
	for _, product := range r.st.products {
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *productRepository) Update(_ context.Context, product domain.Product) error {
	if err := r.writable(); err != nil {
		return err
	}
	current, ok := r.st.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	current.Name = product.Name
	current.Price = product.Price
	current.UpdatedAt = product.UpdatedAt
	r.st.products[product.ID] = current
	return nil
}

func (r *productRepository) Delete(_ context.Context, id string) error {
	if err := r.writable(); err != nil {
		return err
	}
	if _, ok := r.st.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.st.products, id)
	return nil
}

func (r *productRepository) ApplyDelta(_ context.Context, id string, delta int64, at time.Time) (int64, error) {
	if err := r.writable(); err != nil {
		return 0, err
	}
	product, ok := r.st.products[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if product.Quantity+delta < 0 {
		return 0, domain.ErrInsufficientStock
	}
	product.Quantity += delta
	product.UpdatedAt = at
	r.st.products[id] = product
	return product.Quantity, nil
}

type stockMovementRepository struct {
	*repositories
}

func (r *stockMovementRepository) Append(_ context.Context, movement domain.StockMovement) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.st.movements = append(r.st.movements, movement)
	return nil
}

// ListByProduct возвращает движения товара, последние первыми.
func (r *stockMovementRepository) ListByProduct(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	result := make([]domain.StockMovement, 0)
	for i := len(r.st.movements) - 1; i >= 0; i-- {
		movement := r.st.movements[i]
		if movement.ProductID != productID {
			continue
		}
		result = append(result, movement)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
