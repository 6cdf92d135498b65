package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

type cartRepository struct {
	*repositories
}

func (r *cartRepository) GetByUser(_ context.Context, userID string) (domain.Cart, error) {
	cartID, ok := r.st.cartByUser[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return r.load(cartID), nil
}

func (r *cartRepository) CreateIfAbsent(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	if cartID, ok := r.st.cartByUser[cart.UserID]; ok {
		return r.load(cartID), nil
	}
	if err := r.writable(); err != nil {
		return domain.Cart{}, err
	}
	cart.Items = nil
	r.st.carts[cart.ID] = cart
	r.st.cartByUser[cart.UserID] = cart.ID
	return r.load(cart.ID), nil
}

func (r *cartRepository) AddItemQuantity(_ context.Context, cartID, productID string, qty int64, at time.Time) (domain.CartItem, error) {
	if err := r.writable(); err != nil {
		return domain.CartItem{}, err
	}
	if _, ok := r.st.carts[cartID]; !ok {
		return domain.CartItem{}, domain.ErrCartNotFound
	}

	items := r.st.cartItems[cartID]
	var item domain.CartItem
	found := false
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += qty
			item = items[i]
			found = true
			break
		}
	}
	if !found {
		item = domain.CartItem{CartID: cartID, ProductID: productID, Quantity: qty, CreatedAt: at}
		items = append(items, item)
	}
	r.st.cartItems[cartID] = items
	r.touch(cartID, at)
	return item, nil
}

func (r *cartRepository) SetItemQuantity(_ context.Context, cartID, productID string, qty int64, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}
	items := r.st.cartItems[cartID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = qty
			r.touch(cartID, at)
			return nil
		}
	}
	return domain.ErrCartItemNotFound
}

func (r *cartRepository) RemoveItem(_ context.Context, cartID, productID string, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}
	items := r.st.cartItems[cartID]
	for i := range items {
		if items[i].ProductID == productID {
			r.st.cartItems[cartID] = append(items[:i:i], items[i+1:]...)
			r.touch(cartID, at)
			return nil
		}
	}
	return domain.ErrCartItemNotFound
}

func (r *cartRepository) ClearItems(_ context.Context, cartID string, at time.Time) error {
	if err := r.writable(); err != nil {
		return err
	}
	if _, ok := r.st.carts[cartID]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.st.cartItems, cartID)
	r.touch(cartID, at)
	return nil
}

func (r *cartRepository) Delete(_ context.Context, cartID string) error {
	if err := r.writable(); err != nil {
		return err
	}
	cart, ok := r.st.carts[cartID]
	if !ok {
		return domain.ErrCartNotFound
	}
	delete(r.st.carts, cartID)
	delete(r.st.cartByUser, cart.UserID)
	delete(r.st.cartItems, cartID)
	return nil
}

func (r *cartRepository) load(cartID string) domain.Cart {
	cart := r.st.carts[cartID]
	cart.Items = append([]domain.CartItem(nil), r.st.cartItems[cartID]...)
	return cart
}

func (r *cartRepository) touch(cartID string, at time.Time) {
	cart := r.st.carts[cartID]
	cart.UpdatedAt = at
	r.st.carts[cartID] = cart
}

var _ domain.CartRepository = (*cartRepository)(nil)
