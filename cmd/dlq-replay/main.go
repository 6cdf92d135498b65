// Command dlq-replay возвращает сообщения из dead letter topic обратно в рабочие топики.
//
// По умолчанию работает в режиме dry-run и только логирует кандидатов; -execute публикует их.
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
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
)

const (
	envKafkaBrokers    = "COMMERCE_KAFKA_BROKERS"
	envKafkaDLQTopic   = "COMMERCE_KAFKA_DLQ_TOPIC"
	envKafkaOrderTopic = "COMMERCE_KAFKA_ORDER_TOPIC"

	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
)

var errBrokersRequired = errors.New("kafka brokers are required (-brokers or " + envKafkaBrokers + ")")

type config struct {
	brokers     []string
	dlqTopic    string
	eventsTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg, log.WithField("component", "dlq-replay")); err != nil {
		fail(err)
	}
}

func parseConfig(args []string, getenv func(string) string, output io.Writer) (config, error) {
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		cfg     config
		brokers string
	)
	fs.StringVar(&brokers, "brokers", getenv(envKafkaBrokers), "comma-separated Kafka brokers")
	fs.StringVar(&cfg.dlqTopic, "dlq-topic", orDefault(getenv(envKafkaDLQTopic), kafka.TopicDeadLetterQueue), "dead letter topic to scan")
	fs.StringVar(&cfg.eventsTopic, "events-topic", orDefault(getenv(envKafkaOrderTopic), kafka.TopicOrderEvents), "topic for replayed outbox events")
	fs.IntVar(&cfg.limit, "limit", defaultLimit, "max messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish candidates instead of logging them")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the tail of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.brokers = splitBrokers(brokers)
	switch {
	case len(cfg.brokers) == 0:
		return config{}, errBrokersRequired
	case strings.TrimSpace(cfg.dlqTopic) == "":
		return config{}, errors.New("dlq-topic must not be empty")
	case strings.TrimSpace(cfg.eventsTopic) == "":
		return config{}, errors.New("events-topic must not be empty")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be positive, got %d", cfg.limit)
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be positive, got %s", cfg.idleTimeout)
	}
	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func run(ctx context.Context, cfg config, logger *log.Entry) (summary, error) {
	logger.WithFields(log.Fields{
		"brokers":      cfg.brokers,
		"dlq_topic":    cfg.dlqTopic,
		"events_topic": cfg.eventsTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	deps, err := openKafka(cfg, logger)
	if err != nil {
		return summary{}, err
	}
	defer deps.close(logger)

	r := &replayer{
		cfg:       cfg,
		offsets:   deps.offsets,
		source:    deps.source,
		publisher: deps.publisher,
		logger:    logger,
		now:       time.Now,
	}
	result, err := r.Run(ctx)
	logger.WithFields(log.Fields{
		"scanned":  result.scanned,
		"replayed": result.replayed,
		"skipped":  result.skipped,
		"dry_run":  !cfg.execute,
	}).Info("dlq replay finished")
	return result, err
}

func fail(err error) {
	log.WithError(err).Error("dlq replay failed")
	os.Exit(1)
}
