package domain

import (
	"context"
	"time"
)

// ProductRepository описывает требования к хранилищу каталога и остатков.
type ProductRepository interface {
	// Create сохраняет новый товар или возвращает ErrAlreadyExists.
	Create(ctx context.Context, product Product) error
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetForUpdate читает товар и блокирует его строку до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Product, error)
	// List возвращает товары, новые первыми; limit<=0 снимает ограничение.
	List(ctx context.Context, limit int) ([]Product, error)
	// Update меняет название и цену. Остаток этим методом не меняется.
	Update(ctx context.Context, product Product) error
	// Delete удаляет товар из каталога.
	Delete(ctx context.Context, id string) error
	// ApplyDelta атомарно прибавляет delta к остатку, если результат не отрицателен,
	// и возвращает новый остаток. Иначе ErrInsufficientStock; для неизвестного товара ErrProductNotFound.
	// Строка товара остаётся заблокированной до конца транзакции.
	ApplyDelta(ctx context.Context, id string, delta int64, at time.Time) (int64, error)
}

// StockMovementRepository хранит журнал изменений остатков.
type StockMovementRepository interface {
	Append(ctx context.Context, movement StockMovement) error
	ListByProduct(ctx context.Context, productID string, limit int) ([]StockMovement, error)
}

// CartRepository описывает хранилище корзин и их позиций.
type CartRepository interface {
	// GetByUser возвращает корзину пользователя с позициями в порядке добавления или ErrCartNotFound.
	GetByUser(ctx context.Context, userID string) (Cart, error)
	// CreateIfAbsent создаёт пустую корзину; если корзина пользователя уже есть, возвращает её.
	CreateIfAbsent(ctx context.Context, cart Cart) (Cart, error)
	// AddItemQuantity создаёт позицию или увеличивает её количество на qty.
	AddItemQuantity(ctx context.Context, cartID, productID string, qty int64, at time.Time) (CartItem, error)
	// SetItemQuantity задаёт количество существующей позиции или возвращает ErrCartItemNotFound.
	SetItemQuantity(ctx context.Context, cartID, productID string, qty int64, at time.Time) error
	// RemoveItem удаляет позицию или возвращает ErrCartItemNotFound.
	RemoveItem(ctx context.Context, cartID, productID string, at time.Time) error
	// ClearItems удаляет все позиции корзины.
	ClearItems(ctx context.Context, cartID string, at time.Time) error
	// Delete удаляет корзину вместе с позициями.
	Delete(ctx context.Context, cartID string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ или возвращает ErrAlreadyExists.
	Create(ctx context.Context, order Order) error
	// Get возвращает неудалённый заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы, новые первыми; limit<=0 снимает ограничение.
	List(ctx context.Context, limit int) ([]Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListPendingBefore возвращает PENDING-заказы, созданные раньше cutoff, старые первыми.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Order, error)
	// HasPendingForProduct сообщает, есть ли неудалённые PENDING-заказы на товар.
	HasPendingForProduct(ctx context.Context, productID string) (bool, error)
	// UpdateStatus меняет статус только если текущий равен from (compare-and-set).
	// Если статус уже другой, возвращает ErrInvalidTransition; если заказа нет, ErrOrderNotFound.
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus, at time.Time) error
	// SoftDelete помечает заказ удалённым.
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// Repositories — набор репозиториев, привязанных к одной области транзакции.
type Repositories interface {
	Products() ProductRepository
	StockMovements() StockMovementRepository
	Carts() CartRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
}

// TxOptions задаёт режим области транзакции.
type TxOptions struct {
	ReadOnly bool
}

// TxManager открывает область транзакции хранилища.
// fn получает репозитории, работающие внутри транзакции; nil-результат фиксирует её,
// любая ошибка или panic откатывает. Конфликты сериализации возвращаются как ErrConflict.
type TxManager interface {
	WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, repos Repositories) error) error
}
