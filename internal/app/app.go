// Package app собирает сервис: хранилище, сервисы ядра, HTTP/gRPC серверы и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/expiry"
	"github.com/vladislavdragonenkov/commerce/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/commerce/internal/version"
)

// listeners — заранее открытые сокеты, чтобы ошибка занятого порта всплыла до старта воркеров.
type listeners struct {
	api     net.Listener
	grpc    net.Listener
	metrics net.Listener
}

func openListeners(cfg Config) (*listeners, error) {
	var (
		l   listeners
		err error
	)
	if l.api, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
		return nil, fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	if l.grpc, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
		_ = l.api.Close()
		return nil, fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	if l.metrics, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
		_ = l.api.Close()
		_ = l.grpc.Close()
		return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}
	return &l, nil
}

// Run запускает сервис и блокируется до отмены ctx или падения одного из компонентов.
// При остановке по сигналу возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting commerce service")
	shutdownTimeout := shutdownDeadline(cfg)

	engine, err := initStorage(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	tracerProvider, shutdownTracing, err := initTracing(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	registerer := prometheus.DefaultRegisterer
	registerCollector(registerer, version.NewBuildInfoCollector(), logger)
	deps := NewDependencies(engine.tx, cfg, metrics.NewCommerceMetricsWithRegisterer(registerer), tracerProvider, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewStorageChecker(engine.driver, engine))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(engine.outbox, cfg.OutboxMaxPending, 0))

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		return err
	}
	defer closeKafka(producer, logger)

	lis, err := openListeners(cfg)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(deps.HTTPServices(), logger.WithField("component", "http"),
		httpapi.WithTracerProvider(tracerProvider),
	)
	grpcServer, grpcHealth := newGRPCServer(registerer, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, "api", lis.api, router, shutdownTimeout, logger)
	})
	g.Go(func() error {
		return serveHTTP(gctx, "metrics", lis.metrics, newMetricsMux(prometheus.DefaultGatherer, healthHandler), shutdownTimeout, logger)
	})
	g.Go(func() error {
		return serveGRPC(gctx, lis.grpc, grpcServer, grpcHealth, shutdownTimeout, logger.WithField("server", "grpc"))
	})

	expiryWorker := expiry.NewWorker(deps.Orders, cfg.OrderPendingTTL,
		expiry.WithLogger(logger.WithField("component", "order-expiry-worker")),
		expiry.WithInterval(cfg.ExpiryInterval),
		expiry.WithBatchSize(cfg.ExpiryBatchSize),
	)
	g.Go(func() error {
		expiryWorker.Run(gctx)
		return nil
	})

	if producer != nil {
		worker := newOutboxWorker(cfg, engine.outbox, producer, tracerProvider, logger)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})

		consumer, err := initPaymentConsumer(cfg, deps.Orders, producer, logger)
		if err != nil {
			logger.WithError(err).Warn("payment results consumer is disabled")
		} else {
			g.Go(func() error {
				return runPaymentConsumer(gctx, consumer)
			})
		}
	} else {
		logger.Info("kafka is not configured, outbox events stay pending")
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		logger.Info("получен сигнал остановки, сервис остановлен")
		return err
	}
	return nil
}

// registerCollector регистрирует коллектор, пропуская повторную регистрацию.
func registerCollector(registerer prometheus.Registerer, collector prometheus.Collector, logger *log.Entry) {
	if err := registerer.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			logger.WithError(err).Warn("failed to register collector")
		}
	}
}

// shutdownDeadline — общий предел на остановку, если в конфиге он не задан.
func shutdownDeadline(cfg Config) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return DefaultConfig().ShutdownTimeout
}
