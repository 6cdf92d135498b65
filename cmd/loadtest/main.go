// Command loadtest нагружает HTTP API конкурентными заказами на один товар и
// после прогона сверяет остаток: available должен равняться initial - held.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type loadMode string

const (
	modeOrder       loadMode = "order"
	modeOrderCancel loadMode = "order-cancel"
	modeCheckout    loadMode = "checkout"
)

var errInconsistentStock = errors.New("stock is inconsistent after the run")

type config struct {
	baseURL     string
	mode        loadMode
	total       int
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	stock       int64
	price       decimal.Decimal
	userTag     string
	outputPath  string
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.WithError(err).Error("invalid config")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, log.WithField("component", "loadtest"))
	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if writeErr := writeJSONReport(cfg.outputPath, result); writeErr != nil {
			log.WithError(writeErr).Error("failed to write report")
			os.Exit(1)
		}
	}
	if err != nil || result.Failed > 0 {
		log.WithError(err).WithField("failed", result.Failed).Error("load test failed")
		os.Exit(1)
	}
}

func parseConfig(args []string, output io.Writer) (config, error) {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		cfg   config
		mode  string
		price string
	)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "commerce service base URL")
	fs.StringVar(&mode, "mode", string(modeOrder), "scenario: order | order-cancel | checkout")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration 0 means unbounded")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time limit for the run")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.Int64Var(&cfg.stock, "stock", 100, "initial stock of the contended product")
	fs.StringVar(&price, "price", "9.99", "price of the contended product")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return config{}, err
	}
	if cfg.price, err = decimal.NewFromString(strings.TrimSpace(price)); err != nil {
		return config{}, fmt.Errorf("parse price: %w", err)
	}

	switch {
	case strings.TrimSpace(cfg.baseURL) == "":
		return config{}, errors.New("url is required")
	case cfg.duration < 0:
		return config{}, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when duration is not set")
	case cfg.concurrency <= 0:
		return config{}, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case cfg.stock < 0:
		return config{}, errors.New("stock must be >= 0")
	case cfg.price.IsNegative():
		return config{}, errors.New("price must be >= 0")
	case strings.TrimSpace(cfg.userTag) == "":
		return config{}, errors.New("user-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch m := loadMode(strings.TrimSpace(value)); m {
	case modeOrder, modeOrderCancel, modeCheckout:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// run создаёт товар, прогоняет сценарии и сверяет остаток.
// Отказы по нехватке остатка считаются ожидаемыми (rejected), а не ошибками.
func run(ctx context.Context, cfg config, logger *log.Entry) (report, error) {
	col := newCollector()
	client := newAPIClient(cfg.baseURL, cfg.timeout, col)
	startedAt := time.Now()
	runID := fmt.Sprintf("%d", startedAt.UnixNano())

	productID, err := client.createProduct(ctx, "loadtest-"+runID, cfg.price, cfg.stock)
	if err != nil {
		return col.build(string(cfg.mode), startedAt, time.Since(startedAt)), fmt.Errorf("create product: %w", err)
	}
	logger.WithFields(log.Fields{
		"product_id":  productID,
		"stock":       cfg.stock,
		"mode":        cfg.mode,
		"concurrency": cfg.concurrency,
	}).Info("load test started")

	var held atomic.Int64
	s := &scenario{cfg: cfg, client: client, col: col, productID: productID, runID: runID, held: &held}

	jobs := make(chan int, cfg.concurrency*2)
	g, gctx := errgroup.WithContext(ctx)
	for n := 0; n < cfg.concurrency; n++ {
		g.Go(func() error {
			for index := range jobs {
				s.run(gctx, index)
			}
			return nil
		})
	}
	dispatch(gctx, jobs, cfg)
	_ = g.Wait()

	elapsed := time.Since(startedAt)
	result := col.build(string(cfg.mode), startedAt, elapsed)

	// Сверка идёт с собственным контекстом: прерванный прогон всё равно нужно проверить.
	verifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.timeout)
	defer cancel()
	available, err := client.available(verifyCtx, productID)
	if err != nil {
		return result, fmt.Errorf("read final stock: %w", err)
	}
	result.Stock = stockReport{
		ProductID:  productID,
		Initial:    cfg.stock,
		Held:       held.Load(),
		Available:  available,
		Consistent: available >= 0 && available == cfg.stock-held.Load(),
	}
	if !result.Stock.Consistent {
		return result, errInconsistentStock
	}
	return result, ctx.Err()
}

func dispatch(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	for i := 0; cfg.total <= 0 || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

type scenario struct {
	cfg       config
	client    *apiClient
	col       *collector
	productID string
	runID     string
	held      *atomic.Int64
}

func (s *scenario) run(ctx context.Context, index int) {
	start := time.Now()
	result := s.execute(ctx, fmt.Sprintf("%s-%s-%d", s.cfg.userTag, s.runID, index))
	s.col.recordScenario(result, time.Since(start))
}

func (s *scenario) execute(ctx context.Context, userID string) outcome {
	switch s.cfg.mode {
	case modeCheckout:
		if err := s.client.addToCart(ctx, userID, s.productID, 1); err != nil {
			return classify(err)
		}
		orders, err := s.client.checkout(ctx, userID)
		if err != nil {
			return classify(err)
		}
		s.held.Add(int64(orders))
		return outcomeOK
	default:
		orderID, err := s.client.createOrder(ctx, userID, s.productID, 1)
		if err != nil {
			return classify(err)
		}
		s.held.Add(1)
		if s.cfg.mode != modeOrderCancel {
			return outcomeOK
		}
		if err := s.client.cancelOrder(ctx, orderID); err != nil {
			return outcomeFailed
		}
		s.held.Add(-1)
		return outcomeOK
	}
}

func classify(err error) outcome {
	if isInsufficientStock(err) {
		return outcomeRejected
	}
	return outcomeFailed
}
