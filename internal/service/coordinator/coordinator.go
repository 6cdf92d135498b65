package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/commerce/internal/service/coordinator"

// Config задаёт политику повторов при конфликтах сериализации.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// ScopeFunc — тело транзакционной области. Может выполняться несколько раз,
// поэтому не должно иметь побочных эффектов вне переданных репозиториев.
type ScopeFunc func(ctx context.Context, repos domain.Repositories) error

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics задаёт метрики транзакционных областей.
func WithMetrics(m *metrics.CommerceMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithTracerProvider задаёт провайдер трассировки вместо глобального.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Coordinator) {
		c.tracer = provider.Tracer(tracerName)
	}
}

// Coordinator открывает транзакционные области хранилища: фиксирует их при успехе,
// откатывает на любой ошибке и повторяет целиком при ErrConflict.
type Coordinator struct {
	tx      domain.TxManager
	cfg     Config
	logger  *log.Entry
	metrics *metrics.CommerceMetrics
	tracer  trace.Tracer
	sleep   func(ctx context.Context, d time.Duration) error
}

// New создаёт координатор поверх движка хранения.
func New(tx domain.TxManager, cfg Config, options ...Option) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}

	c := &Coordinator{
		tx:     tx,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		sleep:  sleepContext,
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "tx-coordinator")
	}
	return c
}

// Do выполняет fn в пишущей области. ErrConflict приводит к повтору всей fn
// с экспоненциальной задержкой, не более MaxAttempts раз; остальные ошибки возвращаются сразу.
func (c *Coordinator) Do(ctx context.Context, operation string, fn ScopeFunc) error {
	return c.run(ctx, operation, domain.TxOptions{}, c.cfg.MaxAttempts, fn)
}

// Read выполняет fn в read-only области за одну попытку.
func (c *Coordinator) Read(ctx context.Context, operation string, fn ScopeFunc) error {
	return c.run(ctx, operation, domain.TxOptions{ReadOnly: true}, 1, fn)
}

func (c *Coordinator) run(ctx context.Context, operation string, opts domain.TxOptions, maxAttempts int, fn ScopeFunc) (err error) {
	ctx, span := c.tracer.Start(ctx, "tx "+operation, trace.WithAttributes(
		attribute.String("tx.operation", operation),
		attribute.Bool("tx.read_only", opts.ReadOnly),
	))
	start := time.Now()
	attempts := 0
	c.metrics.TxStarted()

	defer func() {
		if r := recover(); r != nil {
			c.finish(span, operation, start, attempts, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		c.finish(span, operation, start, attempts, err)
	}()

	delay := c.cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		attempts = attempt
		err = c.tx.WithinTx(ctx, opts, fn)
		if err == nil {
			if attempt > 1 {
				c.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("transaction committed after retry")
			}
			return nil
		}

		if !domain.IsConflict(err) {
			return err
		}
		if attempt >= maxAttempts {
			c.logger.WithError(err).WithFields(log.Fields{
				"operation":    operation,
				"max_attempts": maxAttempts,
			}).Warn("transaction conflict persisted after all attempts")
			return err
		}

		c.metrics.TxRetried(operation)
		c.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Debug("transaction conflict, retrying")

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
		delay = c.nextDelay(delay)
	}
}

func (c *Coordinator) finish(span trace.Span, operation string, start time.Time, attempts int, err error) {
	outcome := outcomeOf(err)
	c.metrics.TxFinished(operation, outcome, time.Since(start))
	if errors.Is(err, domain.ErrInsufficientStock) {
		c.metrics.StockRejected()
	}

	span.SetAttributes(
		attribute.Int("tx.attempts", attempts),
		attribute.String("tx.outcome", outcome),
	)
	if err != nil && outcome != metrics.OutcomeRejected {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Coordinator) nextDelay(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * c.cfg.BackoffFactor)
	if c.cfg.MaxDelay > 0 && next > c.cfg.MaxDelay {
		next = c.cfg.MaxDelay
	}
	return next
}

// outcomeOf классифицирует результат области для метрик и трассировки.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case domain.IsConflict(err):
		return metrics.OutcomeConflict
	case isBusinessError(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}

// isBusinessError отделяет отказы бизнес-правил от сбоев инфраструктуры.
func isBusinessError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrInsufficientStock,
		domain.ErrEmptyCart,
		domain.ErrInvalidQuantity,
		domain.ErrInvalidStatus,
		domain.ErrInvalidTransition,
		domain.ErrUserRequired,
		domain.ErrProductRequired,
		domain.ErrOrderIDRequired,
		domain.ErrProductNameRequired,
		domain.ErrPriceNegative,
		domain.ErrPricePrecision,
		domain.ErrStockNegative,
		domain.ErrAlreadyExists,
		domain.ErrProductInUse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
