package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/order"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
)

func newTestDependencies(t *testing.T) *Dependencies {
	t.Helper()
	m := metrics.NewCommerceMetricsWithRegisterer(prometheus.NewRegistry())
	return NewDependencies(memory.NewStore(), DefaultConfig(), m, noop.NewTracerProvider(), nil)
}

func TestNewDependencies(t *testing.T) {
	deps := newTestDependencies(t)

	require.NotNil(t, deps.Coordinator)
	require.NotNil(t, deps.Ledger)
	require.NotNil(t, deps.Catalog)
	require.NotNil(t, deps.Carts)
	require.NotNil(t, deps.Orders)
	require.NotNil(t, deps.Logger, "logger must be initialized even when nil is passed")

	services := deps.HTTPServices()
	require.Same(t, deps.Orders, services.Orders)
	require.Same(t, deps.Ledger, services.Stock)
}

func TestDependencies_ShareOneStore(t *testing.T) {
	deps := newTestDependencies(t)
	ctx := context.Background()

	product, err := deps.Catalog.Create(ctx, catalog.CreateProductRequest{
		Name: "Mug", Price: decimal.RequireFromString("9.99"), Quantity: 2,
	})
	require.NoError(t, err)

	_, err = deps.Orders.CreateOrder(ctx, order.CreateOrderRequest{UserID: "u1", ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	available, err := deps.Ledger.Available(ctx, product.ID)
	require.NoError(t, err)
	require.Zero(t, available)
}
