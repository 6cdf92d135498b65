package domain

import "time"

// CartItem — желаемое количество товара в корзине. Резерв склада не держит.
type CartItem struct {
	CartID    string
	ProductID string
	Quantity  int64
	// CreatedAt задаёт порядок позиций (порядок добавления).
	CreatedAt time.Time
}

// Cart — единственная корзина пользователя.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item возвращает позицию корзины по товару.
func (c Cart) Item(productID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// IsEmpty сообщает, что в корзине нет позиций.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
