package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: базовая ошибка отсутствующей сущности (пользователь, корзина, товар, заказ).
	ErrNotFound = errors.New("not found")
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrCartNotFound возвращается, если у пользователя ещё нет корзины.
	ErrCartNotFound = fmt.Errorf("cart %w", ErrNotFound)
	// ErrCartItemNotFound возвращается, если позиции с таким товаром нет в корзине.
	ErrCartItemNotFound = fmt.Errorf("cart item %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден или удалён.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)

	// ErrInsufficientStock: резерв привёл бы остаток товара к отрицательному значению.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEmptyCart: подсчёт суммы или оформление корзины без позиций.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidQuantity: количество должно быть строго положительным.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrConflict: конфликт сериализации на уровне хранилища, операцию можно повторить целиком.
	ErrConflict = errors.New("storage serialization conflict")
	// ErrAlreadyExists: запись с таким ключом уже есть. Повтор не поможет.
	ErrAlreadyExists = errors.New("already exists")
	// ErrProductInUse: на товар ссылаются заказы, ожидающие оплаты.
	ErrProductInUse = errors.New("product has pending orders")

	// ErrInvalidStatus: неизвестный статус заказа или статус, недопустимый при создании.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition: переход из терминального состояния заказа.
	ErrInvalidTransition = errors.New("order status transition is not allowed")

	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductRequired = errors.New("product_id is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка пустого названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrPriceNegative = errors.New("price must be non-negative")
	// Цена хранится с точностью до копейки.
	ErrPricePrecision = errors.New("price must have at most 2 decimal places")
	// Ошибка отрицательного остатка товара при заведении в каталог.
	ErrStockNegative = errors.New("stock quantity must be non-negative")
	// ErrReadOnlyTx: попытка записи внутри read-only транзакции.
	ErrReadOnlyTx = errors.New("write attempted in read-only transaction")
	// ErrOutboxPublish: ошибка при публикации или отметке сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsConflict проверяет, является ли ошибка конфликтом сериализации.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound проверяет, относится ли ошибка к классу NotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
