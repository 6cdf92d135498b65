package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
	"github.com/vladislavdragonenkov/commerce/internal/service/stock"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	ledger *stock.Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	entry := log.NewEntry(logger)

	m := metrics.NewCommerceMetricsWithRegisterer(prometheus.NewRegistry())
	store := memory.NewStore()
	coord := coordinator.New(store, coordinator.DefaultConfig(),
		coordinator.WithLogger(entry),
		coordinator.WithMetrics(m),
	)
	ledger := stock.NewLedger(coord, entry)
	return fixture{
		svc:    NewService(coord, ledger, m, entry),
		store:  store,
		ledger: ledger,
	}
}

func (f fixture) seedProduct(t *testing.T, id string, qty int64) {
	t.Helper()
	now := time.Now().UTC()
	err := f.store.WithinTx(context.Background(), domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Products().Create(ctx, domain.Product{
			ID: id, Name: id, Price: decimal.NewFromInt(10), Quantity: qty,
			CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)
}

func (f fixture) available(t *testing.T, id string) int64 {
	t.Helper()
	qty, err := f.ledger.Available(context.Background(), id)
	require.NoError(t, err)
	return qty
}

func (f fixture) pendingEvents(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	msgs, err := f.store.Outbox().PullPending(context.Background(), 0)
	require.NoError(t, err)
	return msgs
}

func TestCreateOrder_ReadBackMatches(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 10)
	ctx := context.Background()

	created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, created.Status)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.UserID, got.UserID)
	require.Equal(t, created.ProductID, got.ProductID)
	require.Equal(t, created.Quantity, got.Quantity)
	require.Equal(t, created.Status, got.Status)
	require.EqualValues(t, 7, f.available(t, "p1"))

	events := f.pendingEvents(t)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventTypeOrderCreated, events[0].EventType)
	require.Equal(t, created.ID, events[0].AggregateID)

	var payload Event
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	require.Equal(t, created.ID, payload.OrderID)
	require.EqualValues(t, 3, payload.Quantity)
	require.Equal(t, "PENDING", payload.Status)
}

func TestCreateOrder_StatusHandling(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 10)
	ctx := context.Background()

	paid, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 1, Status: "paid"})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, paid.Status)

	_, err = f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 1, Status: "CANCELLED"})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 1, Status: "SHIPPED"})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	require.EqualValues(t, 9, f.available(t, "p1"))
}

func TestCreateOrder_FailureLeavesStockUnchanged(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 2)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 3})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "missing", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 0})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.CreateOrder(ctx, CreateOrderRequest{ProductID: "p1", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrUserRequired)

	require.EqualValues(t, 2, f.available(t, "p1"))
	orders, err := f.svc.List(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, orders)
	require.Empty(t, f.pendingEvents(t))
}

func TestCreateOrder_ConcurrentNeverOversells(t *testing.T) {
	f := newFixture(t)
	const (
		stockLevel = 7
		buyers     = 25
	)
	f.seedProduct(t, "hot", stockLevel)

	var succeeded, rejected atomic.Int64
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderRequest{UserID: "u", ProductID: "hot", Quantity: 1})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.EqualValues(t, stockLevel, succeeded.Load())
	require.EqualValues(t, buyers-stockLevel, rejected.Load())
	require.Zero(t, f.available(t, "hot"))
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "b", 5)
	f.seedProduct(t, "a", 5)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts().CreateIfAbsent(ctx, domain.Cart{ID: "c1", UserID: "u1"})
		if err != nil {
			return err
		}
		if _, err := repos.Carts().AddItemQuantity(ctx, cart.ID, "b", 2, time.Now()); err != nil {
			return err
		}
		_, err = repos.Carts().AddItemQuantity(ctx, cart.ID, "a", 1, time.Now())
		return err
	})
	require.NoError(t, err)

	orders, err := f.svc.Checkout(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "a", orders[0].ProductID)
	require.Equal(t, "b", orders[1].ProductID)
	require.EqualValues(t, 4, f.available(t, "a"))
	require.EqualValues(t, 3, f.available(t, "b"))
	require.Len(t, f.pendingEvents(t), 2)

	_, err = f.svc.Checkout(ctx, "u1")
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = f.svc.Checkout(ctx, "nobody")
	require.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestCheckout_FailureRollsBackEveryLine(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "a", 5)
	f.seedProduct(t, "b", 1)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts().CreateIfAbsent(ctx, domain.Cart{ID: "c1", UserID: "u1"})
		if err != nil {
			return err
		}
		if _, err := repos.Carts().AddItemQuantity(ctx, cart.ID, "a", 2, time.Now()); err != nil {
			return err
		}
		_, err = repos.Carts().AddItemQuantity(ctx, cart.ID, "b", 3, time.Now())
		return err
	})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, "u1")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.EqualValues(t, 5, f.available(t, "a"))
	require.EqualValues(t, 1, f.available(t, "b"))
	orders, err := f.svc.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Empty(t, orders)

	err = f.store.WithinTx(ctx, domain.TxOptions{ReadOnly: true}, func(ctx context.Context, repos domain.Repositories) error {
		cart, err := repos.Carts().GetByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, cart.Items, 2, "cart must survive failed checkout")
		return nil
	})
	require.NoError(t, err)
}

func TestCancel_RestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 5)
	ctx := context.Background()

	created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 4})
	require.NoError(t, err)
	require.EqualValues(t, 1, f.available(t, "p1"))

	cancelled, err := f.svc.Cancel(ctx, created.ID, "")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.EqualValues(t, 5, f.available(t, "p1"))

	_, err = f.svc.Cancel(ctx, created.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.EqualValues(t, 5, f.available(t, "p1"))

	_, err = f.svc.Complete(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestComplete_DoesNotTouchStock(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 5)
	ctx := context.Background()

	created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 2})
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, completed.Status)
	require.EqualValues(t, 3, f.available(t, "p1"))

	_, err = f.svc.Cancel(ctx, created.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.EqualValues(t, 3, f.available(t, "p1"))

	_, err = f.svc.Complete(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestConcurrentCancelReleasesOnce(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 3)
	ctx := context.Background()

	created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 3})
	require.NoError(t, err)

	var wins atomic.Int64
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.svc.Cancel(ctx, created.ID, "")
			if err == nil {
				wins.Add(1)
				return nil
			}
			if errors.Is(err, domain.ErrInvalidTransition) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, 3, f.available(t, "p1"))
}

func TestReplaceAndChangeQuantity(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 5)
	f.seedProduct(t, "p2", 1)
	ctx := context.Background()

	original, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 5})
	require.NoError(t, err)

	changed, err := f.svc.ChangeQuantity(ctx, original.ID, 5)
	require.NoError(t, err, "released stock must be reusable in the same scope")
	require.NotEqual(t, original.ID, changed.ID)
	require.Equal(t, "u1", changed.UserID)
	require.Zero(t, f.available(t, "p1"))

	old, err := f.svc.Get(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, old.Status)

	_, err = f.svc.Replace(ctx, changed.ID, "p2", 2)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	still, err := f.svc.Get(ctx, changed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, still.Status, "failed replace must keep the order")

	replaced, err := f.svc.Replace(ctx, changed.ID, "p2", 1)
	require.NoError(t, err)
	require.Equal(t, "p2", replaced.ProductID)
	require.EqualValues(t, 5, f.available(t, "p1"))
	require.Zero(t, f.available(t, "p2"))

	_, err = f.svc.ChangeQuantity(ctx, replaced.ID, 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestDelete_SoftDeletesWithoutStock(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 5)
	ctx := context.Background()

	created, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, created.ID))
	_, err = f.svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.EqualValues(t, 3, f.available(t, "p1"))
	require.ErrorIs(t, f.svc.Delete(ctx, created.ID), domain.ErrOrderNotFound)
}

func TestExpirePending(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 10)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	f.svc.now = func() time.Time { return clock }

	stale, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	done, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, done.ID)
	require.NoError(t, err)

	clock = base.Add(time.Hour)
	fresh, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 3})
	require.NoError(t, err)

	expired, err := f.svc.ExpirePending(ctx, base.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	got, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, got.Status)
	got, err = f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.EqualValues(t, 6, f.available(t, "p1"))
}

func TestExpirePending_OrderOfRemovedProductDoesNotBlockQueue(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "gone", 5)
	f.seedProduct(t, "live", 5)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	f.svc.now = func() time.Time { return clock }

	orphan, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "gone", Quantity: 1})
	require.NoError(t, err)
	clock = base.Add(time.Minute)
	fresh, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u2", ProductID: "live", Quantity: 2})
	require.NoError(t, err)

	// Товар удалён в обход каталога, как в данных до проверки PENDING-заказов.
	err = f.store.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Products().Delete(ctx, "gone")
	})
	require.NoError(t, err)

	for n := 0; n < 2; n++ {
		expired, err := f.svc.ExpirePending(ctx, base.Add(time.Hour), 1)
		require.NoError(t, err)
		require.Equal(t, 1, expired)
	}

	got, err := f.svc.Get(ctx, orphan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, got.Status)
	got, err = f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, got.Status)
	require.EqualValues(t, 5, f.available(t, "live"))
}

// failingTx ломает каждую пишущую область, чтение отдаёт в memory.Store.
type failingTx struct {
	inner *memory.Store
	err   error
}

func (f failingTx) WithinTx(ctx context.Context, opts domain.TxOptions, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if opts.ReadOnly {
		return f.inner.WithinTx(ctx, opts, fn)
	}
	return f.err
}

func TestExpirePending_ReportsFailures(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 5)
	ctx := context.Background()

	stale, err := f.svc.CreateOrder(ctx, CreateOrderRequest{UserID: "u1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	storageErr := errors.New("storage unavailable")
	coord := coordinator.New(failingTx{inner: f.store, err: storageErr}, coordinator.Config{MaxAttempts: 1},
		coordinator.WithLogger(f.svc.logger),
	)
	broken := NewService(coord, f.ledger, f.svc.metrics, f.svc.logger)

	expired, err := broken.ExpirePending(ctx, time.Now().Add(time.Hour), 10)
	require.ErrorIs(t, err, storageErr)
	require.ErrorContains(t, err, stale.ID)
	require.Zero(t, expired)
}
