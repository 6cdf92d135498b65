package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 100
)

var (
	expiryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_order_expiry_runs_total",
		Help: "Pending-order expiry runs grouped by result.",
	}, []string{"result"})
	expiryExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commerce_order_expiry_expired_total",
		Help: "Pending orders cancelled by timeout.",
	})
	expiryLastExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commerce_order_expiry_last_expired",
		Help: "Orders cancelled during the last expiry run.",
	})
)

// Expirer отменяет PENDING-заказы старше cutoff и возвращает число отменённых.
type Expirer interface {
	ExpirePending(ctx context.Context, before time.Time, limit int) (int, error)
}

// Options задаёт параметры воркера.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между запусками.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер порции заказов.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Worker периодически отменяет неоплаченные заказы, пролежавшие в PENDING дольше ttl,
// и тем самым возвращает их резерв на склад.
type Worker struct {
	expirer   Expirer
	ttl       time.Duration
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewWorker создаёт воркер. ttl <= 0 выключает его.
func NewWorker(expirer Expirer, ttl time.Duration, options ...Option) *Worker {
	opts := Options{
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-expiry-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Worker{
		expirer:   expirer,
		ttl:       ttl,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
}

// Run запускает периодическую отмену до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.expirer == nil || w.ttl <= 0 {
		w.logger.Info("order expiry worker is disabled")
		return
	}

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	expired, err := w.ExpireOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		expiryRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).WithField("expired", expired).Warn("order expiry run failed")
		return
	}

	expiryRunsTotal.WithLabelValues("ok").Inc()
	expiryLastExpired.Set(float64(expired))
	if expired > 0 {
		w.logger.WithField("expired", expired).Info("pending orders expired")
	}
}

// ExpireOnce отменяет все просроченные заказы порциями batchSize.
func (w *Worker) ExpireOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.ttl)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		expired, err := w.expirer.ExpirePending(ctx, cutoff, w.batchSize)
		total += expired
		if expired > 0 {
			expiryExpiredTotal.Add(float64(expired))
		}
		if err != nil {
			return total, err
		}
		if expired < w.batchSize {
			return total, nil
		}
	}
}
