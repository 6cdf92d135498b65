package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// state — полный снимок данных in-memory хранилища.
type state struct {
	products   map[string]domain.Product
	movements  []domain.StockMovement
	carts      map[string]domain.Cart
	cartByUser map[string]string
	cartItems  map[string][]domain.CartItem
	orders     map[string]domain.Order
	outbox     map[string]outboxRecord
}

func newState() *state {
	return &state{
		products:   make(map[string]domain.Product),
		carts:      make(map[string]domain.Cart),
		cartByUser: make(map[string]string),
		cartItems:  make(map[string][]domain.CartItem),
		orders:     make(map[string]domain.Order),
		outbox:     make(map[string]outboxRecord),
	}
}

// clone делает независимую копию снимка для пишущей транзакции.
func (s *state) clone() *state {
	c := &state{
		products:   make(map[string]domain.Product, len(s.products)),
		movements:  make([]domain.StockMovement, len(s.movements)),
		carts:      make(map[string]domain.Cart, len(s.carts)),
		cartByUser: make(map[string]string, len(s.cartByUser)),
		cartItems:  make(map[string][]domain.CartItem, len(s.cartItems)),
		orders:     make(map[string]domain.Order, len(s.orders)),
		outbox:     make(map[string]outboxRecord, len(s.outbox)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	copy(c.movements, s.movements)
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartByUser {
		c.cartByUser[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = append([]domain.CartItem(nil), v...)
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

// Store — in-memory движок хранения с транзакционным контрактом TxManager.
// Пишущие транзакции работают над копией снимка и сериализуются; копия публикуется только при успехе,
// поэтому ошибка, отмена контекста или panic оставляют данные без изменений.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore возвращает пустое in-memory хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx выполняет fn в области транзакции.
func (s *Store) WithinTx(ctx context.Context, opts domain.TxOptions, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.ReadOnly {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return fn(ctx, &repositories{st: s.st, readOnly: true})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &repositories{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Outbox возвращает outbox-репозиторий вне пользовательских транзакций (для outbox worker).
func (s *Store) Outbox() domain.OutboxRepository {
	return &lockedOutbox{store: s}
}

// Ping всегда успешен; нужен для health-проверок наравне с PostgreSQL.
func (s *Store) Ping(context.Context) error {
	return nil
}

// repositories реализует domain.Repositories поверх одного снимка.
type repositories struct {
	st       *state
	readOnly bool
}

func (r *repositories) writable() error {
	if r.readOnly {
		return domain.ErrReadOnlyTx
	}
	return nil
}

func (r *repositories) Products() domain.ProductRepository {
	return &productRepository{r}
}

func (r *repositories) StockMovements() domain.StockMovementRepository {
	return &stockMovementRepository{r}
}

func (r *repositories) Carts() domain.CartRepository {
	return &cartRepository{r}
}

func (r *repositories) Orders() domain.OrderRepository {
	return &orderRepository{r}
}

func (r *repositories) Outbox() domain.OutboxRepository {
	return &outboxRepository{r}
}

var (
	_ domain.TxManager    = (*Store)(nil)
	_ domain.Repositories = (*repositories)(nil)
)
