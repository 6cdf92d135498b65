package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type productRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type productPatchRequest struct {
	Name     *string          `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Quantity *int64           `json:"quantity"`
}

type stockAdjustRequest struct {
	Delta int64 `json:"delta"`
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type quantityRequest struct {
	Quantity int64 `json:"quantity"`
}

type createOrderRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Status    string `json:"status"`
}

type replaceOrderRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type productResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toProduct(p domain.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  p.Quantity,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type movementResponse struct {
	ID            string    `json:"id"`
	Delta         int64     `json:"delta"`
	Reason        string    `json:"reason"`
	OrderID       string    `json:"order_id,omitempty"`
	QuantityAfter int64     `json:"quantity_after"`
	CreatedAt     time.Time `json:"created_at"`
}

type stockResponse struct {
	ProductID string             `json:"product_id"`
	Available int64              `json:"available"`
	History   []movementResponse `json:"history,omitempty"`
}

type cartItemResponse struct {
	ProductID string    `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

type cartResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Items     []cartItemResponse `json:"items"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func toCart(c domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.CreatedAt,
		})
	}
	return cartResponse{ID: c.ID, UserID: c.UserID, Items: items, UpdatedAt: c.UpdatedAt}
}

type orderResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrder(o domain.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toOrders(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrder(o))
	}
	return out
}
