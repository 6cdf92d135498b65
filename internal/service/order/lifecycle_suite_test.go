package order_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
	"github.com/vladislavdragonenkov/commerce/internal/service/order"
	"github.com/vladislavdragonenkov/commerce/internal/service/stock"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

// CommerceLifecycleTestSuite проходит путь от каталога через корзину до завершения и отмены заказов.
type CommerceLifecycleTestSuite struct {
	suite.Suite
	store   *memory.Store
	ledger  *stock.Ledger
	catalog *catalog.Service
	carts   *cart.Service
	orders  *order.Service
}

func (s *CommerceLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "lifecycle-test")

	m := metrics.NewCommerceMetricsWithRegisterer(prometheus.NewRegistry())
	s.store = memory.NewStore()
	coord := coordinator.New(s.store, coordinator.DefaultConfig(),
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
	)
	s.ledger = stock.NewLedger(coord, logger)
	s.catalog = catalog.NewService(coord, s.ledger, logger)
	s.carts = cart.NewService(coord, logger)
	s.orders = order.NewService(coord, s.ledger, m, logger)
}

func (s *CommerceLifecycleTestSuite) createProduct(name, price string, qty int64) domain.Product {
	product, err := s.catalog.Create(context.Background(), catalog.CreateProductRequest{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	})
	require.NoError(s.T(), err)
	return product
}

func (s *CommerceLifecycleTestSuite) available(productID string) int64 {
	qty, err := s.ledger.Available(context.Background(), productID)
	require.NoError(s.T(), err)
	return qty
}

func (s *CommerceLifecycleTestSuite) TestCartCheckoutThenComplete() {
	ctx := context.Background()
	t := s.T()

	laptop := s.createProduct("Laptop", "100", 3)
	mouse := s.createProduct("Mouse", "50", 10)

	_, err := s.carts.AddItem(ctx, "customer-1", laptop.ID, 2)
	require.NoError(t, err)
	_, err = s.carts.AddItem(ctx, "customer-1", mouse.ID, 1)
	require.NoError(t, err)

	total, err := s.carts.Total(ctx, "customer-1")
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.NewFromInt(250)), "total=%s", total)

	orders, err := s.orders.Checkout(ctx, "customer-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.EqualValues(t, 1, s.available(laptop.ID))
	require.EqualValues(t, 9, s.available(mouse.ID))

	current, err := s.carts.Get(ctx, "customer-1")
	require.NoError(t, err)
	require.True(t, current.IsEmpty())

	for _, o := range orders {
		completed, err := s.orders.Complete(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusCompleted, completed.Status)
	}
	require.EqualValues(t, 1, s.available(laptop.ID))

	listed, err := s.orders.ListByUser(ctx, "customer-1", 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	events, err := s.store.Outbox().PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
}

func (s *CommerceLifecycleTestSuite) TestDirectOrderCancelReturnsStock() {
	ctx := context.Background()
	t := s.T()

	phone := s.createProduct("Phone", "300", 2)

	created, err := s.orders.CreateOrder(ctx, order.CreateOrderRequest{UserID: "customer-2", ProductID: phone.ID, Quantity: 2})
	require.NoError(t, err)
	require.Zero(t, s.available(phone.ID))

	_, err = s.orders.CreateOrder(ctx, order.CreateOrderRequest{UserID: "customer-3", ProductID: phone.ID, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = s.orders.Cancel(ctx, created.ID, order.CancelReasonUser)
	require.NoError(t, err)
	require.EqualValues(t, 2, s.available(phone.ID))

	history, err := s.ledger.History(ctx, phone.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, domain.StockReasonRelease, history[0].Reason)
	require.Equal(t, created.ID, history[0].OrderID)
}

func (s *CommerceLifecycleTestSuite) TestAdjustAfterOrders() {
	ctx := context.Background()
	t := s.T()

	cable := s.createProduct("Cable", "5", 1)
	_, err := s.orders.CreateOrder(ctx, order.CreateOrderRequest{UserID: "customer-4", ProductID: cable.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = s.ledger.Adjust(ctx, cable.ID, -1)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	quantity, err := s.ledger.Adjust(ctx, cable.ID, 4)
	require.NoError(t, err)
	require.EqualValues(t, 4, quantity)
}

func TestCommerceLifecycleSuite(t *testing.T) {
	suite.Run(t, new(CommerceLifecycleTestSuite))
}
