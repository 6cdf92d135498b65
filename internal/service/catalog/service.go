package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
	"github.com/vladislavdragonenkov/commerce/internal/service/stock"
)

const defaultListLimit = 100

// CreateProductRequest — данные нового товара.
type CreateProductRequest struct {
	Name     string
	Price    decimal.Decimal
	Quantity int64
}

// UpdateProductRequest — изменение товара. Nil-поле не меняется.
// Quantity задаёт желаемый остаток; разница проводится через складской журнал.
type UpdateProductRequest struct {
	Name     *string
	Price    *decimal.Decimal
	Quantity *int64
}

// Service управляет каталогом товаров.
type Service struct {
	coord  *coordinator.Coordinator
	ledger *stock.Ledger
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(coord *coordinator.Coordinator, ledger *stock.Ledger, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog-service")
	}
	return &Service{
		coord:  coord,
		ledger: ledger,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create заводит товар. Начальный остаток проводится как корректировка в той же транзакции.
func (s *Service) Create(ctx context.Context, req CreateProductRequest) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Price:     req.Price,
		Quantity:  req.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	err := s.coord.Do(ctx, "product.create", func(ctx context.Context, repos domain.Repositories) error {
		initial := product
		initial.Quantity = 0
		if err := repos.Products().Create(ctx, initial); err != nil {
			return err
		}
		if product.Quantity == 0 {
			return nil
		}
		_, err := s.ledger.AdjustWithin(ctx, repos, product.ID, product.Quantity)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"quantity":   product.Quantity,
	}).Info("product created")
	return product, nil
}

// Get возвращает товар.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := s.coord.Read(ctx, "product.get", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		product, err = repos.Products().Get(ctx, id)
		return err
	})
	return product, err
}

// List возвращает товары, новые первыми.
func (s *Service) List(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var products []domain.Product
	err := s.coord.Read(ctx, "product.list", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		products, err = repos.Products().List(ctx, limit)
		return err
	})
	return products, err
}

// Update меняет название, цену и остаток товара одной транзакцией.
// Строка товара блокируется до чтения остатка, так что дельта считается от актуального значения.
func (s *Service) Update(ctx context.Context, id string, req UpdateProductRequest) (domain.Product, error) {
	var product domain.Product
	err := s.coord.Do(ctx, "product.update", func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Products().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			current.Name = strings.TrimSpace(*req.Name)
		}
		if req.Price != nil {
			current.Price = *req.Price
		}
		if req.Quantity != nil && *req.Quantity < 0 {
			return domain.ErrStockNegative
		}
		if errs := current.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		current.UpdatedAt = s.now()
		if err := repos.Products().Update(ctx, current); err != nil {
			return err
		}

		if req.Quantity != nil && *req.Quantity != current.Quantity {
			quantity, err := s.ledger.AdjustWithin(ctx, repos, id, *req.Quantity-current.Quantity)
			if err != nil {
				return err
			}
			current.Quantity = quantity
		}
		product = current
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// Delete удаляет товар из каталога. Пока на товар есть PENDING-заказы, возвращает ErrProductInUse:
// их резерв некуда было бы вернуть. Корзины не проверяются.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.coord.Do(ctx, "product.delete", func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Products().GetForUpdate(ctx, id); err != nil {
			return err
		}
		pending, err := repos.Orders().HasPendingForProduct(ctx, id)
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("%w: %s", domain.ErrProductInUse, id)
		}
		return repos.Products().Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}
