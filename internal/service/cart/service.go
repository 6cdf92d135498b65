package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
)

// Service управляет корзиной пользователя. Корзина не резервирует остаток:
// количество в позиции лишь намерение покупателя.
type Service struct {
	coord  *coordinator.Coordinator
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис корзин.
func NewService(coord *coordinator.Coordinator, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}
	return &Service{
		coord:  coord,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate возвращает корзину пользователя, создавая пустую при первом обращении.
// Конкурентные первые вызовы сходятся на одной корзине.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (domain.Cart, error) {
	if err := requireUser(userID); err != nil {
		return domain.Cart{}, err
	}

	var cart domain.Cart
	err := s.coord.Do(ctx, "cart.get_or_create", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		cart, err = s.ensureCart(ctx, repos, userID)
		return err
	})
	return cart, err
}

// Get возвращает корзину пользователя или ErrCartNotFound.
func (s *Service) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if err := requireUser(userID); err != nil {
		return domain.Cart{}, err
	}

	var cart domain.Cart
	err := s.coord.Read(ctx, "cart.get", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		cart, err = repos.Carts().GetByUser(ctx, userID)
		return err
	})
	return cart, err
}

// AddItem добавляет товар в корзину или увеличивает количество существующей позиции.
// Корзина создаётся при первом добавлении; товар должен существовать.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int64) (domain.Cart, error) {
	if err := requireUser(userID); err != nil {
		return domain.Cart{}, err
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Cart{}, domain.ErrProductRequired
	}
	if qty <= 0 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	var cart domain.Cart
	err := s.coord.Do(ctx, "cart.add_item", func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Products().Get(ctx, productID); err != nil {
			return err
		}
		current, err := s.ensureCart(ctx, repos, userID)
		if err != nil {
			return err
		}
		if _, err := repos.Carts().AddItemQuantity(ctx, current.ID, productID, qty, s.now()); err != nil {
			return err
		}
		cart, err = repos.Carts().GetByUser(ctx, userID)
		return err
	})
	if err != nil {
		return domain.Cart{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   qty,
	}).Debug("cart item added")
	return cart, nil
}

// UpdateItem задаёт количество позиции; qty <= 0 удаляет её.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, qty int64) (domain.Cart, error) {
	if err := requireUser(userID); err != nil {
		return domain.Cart{}, err
	}

	var cart domain.Cart
	err := s.coord.Do(ctx, "cart.update_item", func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Carts().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		if qty <= 0 {
			err = repos.Carts().RemoveItem(ctx, current.ID, productID, s.now())
		} else {
			err = repos.Carts().SetItemQuantity(ctx, current.ID, productID, qty, s.now())
		}
		if err != nil {
			return err
		}
		cart, err = repos.Carts().GetByUser(ctx, userID)
		return err
	})
	return cart, err
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	return s.coord.Do(ctx, "cart.remove_item", func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Carts().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		return repos.Carts().RemoveItem(ctx, current.ID, productID, s.now())
	})
}

// Clear удаляет все позиции, сама корзина остаётся.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	return s.coord.Do(ctx, "cart.clear", func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Carts().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		return repos.Carts().ClearItems(ctx, current.ID, s.now())
	})
}

// Delete удаляет корзину вместе с позициями.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	err := s.coord.Do(ctx, "cart.delete", func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Carts().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		return repos.Carts().Delete(ctx, current.ID)
	})
	if err != nil {
		return err
	}
	s.logger.WithField("user_id", userID).Info("cart deleted")
	return nil
}

// Total считает сумму корзины по текущим ценам. Позиции удалённых товаров пропускаются.
func (s *Service) Total(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := requireUser(userID); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	err := s.coord.Read(ctx, "cart.total", func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Carts().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		if current.IsEmpty() {
			return domain.ErrEmptyCart
		}

		sum := decimal.Zero
		for _, item := range current.Items {
			product, err := repos.Products().Get(ctx, item.ProductID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			sum = sum.Add(product.Price.Mul(decimal.NewFromInt(item.Quantity)))
		}
		total = sum
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Service) ensureCart(ctx context.Context, repos domain.Repositories, userID string) (domain.Cart, error) {
	now := s.now()
	return repos.Carts().CreateIfAbsent(ctx, domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrUserRequired
	}
	return nil
}
