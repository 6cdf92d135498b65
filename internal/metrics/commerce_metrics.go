package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы транзакционной области.
const (
	OutcomeCommitted = "committed"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// CommerceMetrics содержит метрики транзакционных областей и жизненного цикла заказов.
// Все методы безопасны для nil-получателя.
type CommerceMetrics struct {
	// Транзакционные области
	txDuration *prometheus.HistogramVec
	txOutcomes *prometheus.CounterVec
	txRetries  *prometheus.CounterVec
	txInFlight prometheus.Gauge

	// Заказы
	ordersCreated   prometheus.Counter
	ordersCompleted prometheus.Counter
	ordersCancelled *prometheus.CounterVec

	// Склад
	stockRejected prometheus.Counter
}

// NewCommerceMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCommerceMetrics() *CommerceMetrics {
	return NewCommerceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCommerceMetricsWithRegisterer регистрирует метрики в переданном registerer;
// уже зарегистрированные коллекторы переиспользуются.
func NewCommerceMetricsWithRegisterer(registerer prometheus.Registerer) *CommerceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CommerceMetrics{
		txDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commerce_tx_duration_seconds",
			Help:    "Duration of transactional scopes including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation", "outcome"}), "commerce_tx_duration_seconds"),
		txOutcomes: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_tx_total",
			Help: "Total number of transactional scopes by outcome",
		}, []string{"operation", "outcome"}), "commerce_tx_total"),
		txRetries: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_tx_retries_total",
			Help: "Total number of transactional scope retries after a conflict",
		}, []string{"operation"}), "commerce_tx_retries_total"),
		txInFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commerce_tx_in_flight",
			Help: "Number of transactional scopes currently running",
		}), "commerce_tx_in_flight"),
		ordersCreated: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commerce_orders_created_total",
			Help: "Total number of orders created",
		}), "commerce_orders_created_total"),
		ordersCompleted: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commerce_orders_completed_total",
			Help: "Total number of orders completed",
		}), "commerce_orders_completed_total"),
		ordersCancelled: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commerce_orders_cancelled_total",
			Help: "Total number of orders cancelled by reason",
		}, []string{"reason"}), "commerce_orders_cancelled_total"),
		stockRejected: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commerce_stock_rejected_total",
			Help: "Total number of reservations rejected for insufficient stock",
		}), "commerce_stock_rejected_total"),
	}
}

// register регистрирует коллектор или возвращает уже зарегистрированный коллектор того же типа.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T, name string) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// TxStarted отмечает начало транзакционной области.
func (m *CommerceMetrics) TxStarted() {
	if m == nil {
		return
	}
	m.txInFlight.Inc()
}

// TxFinished фиксирует исход и длительность транзакционной области.
func (m *CommerceMetrics) TxFinished(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.txInFlight.Dec()
	m.txOutcomes.WithLabelValues(operation, outcome).Inc()
	m.txDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// TxRetried увеличивает счётчик повторов после конфликта.
func (m *CommerceMetrics) TxRetried(operation string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation).Inc()
}

// OrderCreated увеличивает счётчик созданных заказов.
func (m *CommerceMetrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// OrderCompleted увеличивает счётчик завершённых заказов.
func (m *CommerceMetrics) OrderCompleted() {
	if m == nil {
		return
	}
	m.ordersCompleted.Inc()
}

// OrderCancelled увеличивает счётчик отменённых заказов с указанием причины.
func (m *CommerceMetrics) OrderCancelled(reason string) {
	if m == nil {
		return
	}
	m.ordersCancelled.WithLabelValues(reason).Inc()
}

// StockRejected увеличивает счётчик отказов по остатку.
func (m *CommerceMetrics) StockRejected() {
	if m == nil {
		return
	}
	m.stockRejected.Inc()
}
