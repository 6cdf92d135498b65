package app

import (
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/cart"
	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
	"github.com/vladislavdragonenkov/commerce/internal/service/order"
	"github.com/vladislavdragonenkov/commerce/internal/service/stock"
	"github.com/vladislavdragonenkov/commerce/internal/transport/httpapi"
)

// Dependencies содержит сервисы ядра, собранные поверх одного TxManager.
type Dependencies struct {
	Metrics     *metrics.CommerceMetrics
	Coordinator *coordinator.Coordinator
	Ledger      *stock.Ledger
	Catalog     *catalog.Service
	Carts       *cart.Service
	Orders      *order.Service
	Logger      *log.Entry
}

// NewDependencies собирает сервисы. Все они делят координатор и, значит, политику повторов.
func NewDependencies(tx domain.TxManager, cfg Config, m *metrics.CommerceMetrics, tracerProvider trace.TracerProvider, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	coordCfg := coordinator.DefaultConfig()
	if cfg.TxMaxAttempts > 0 {
		coordCfg.MaxAttempts = cfg.TxMaxAttempts
	}
	coord := coordinator.New(tx, coordCfg,
		coordinator.WithLogger(logger.WithField("component", "coordinator")),
		coordinator.WithMetrics(m),
		coordinator.WithTracerProvider(tracerProvider),
	)

	ledger := stock.NewLedger(coord, logger.WithField("component", "stock"))
	return &Dependencies{
		Metrics:     m,
		Coordinator: coord,
		Ledger:      ledger,
		Catalog:     catalog.NewService(coord, ledger, logger.WithField("component", "catalog")),
		Carts:       cart.NewService(coord, logger.WithField("component", "cart")),
		Orders:      order.NewService(coord, ledger, m, logger.WithField("component", "order")),
		Logger:      logger,
	}
}

// HTTPServices — срез зависимостей, нужный HTTP-границе.
func (d *Dependencies) HTTPServices() httpapi.Services {
	return httpapi.Services{
		Catalog: d.Catalog,
		Stock:   d.Ledger,
		Carts:   d.Carts,
		Orders:  d.Orders,
	}
}
