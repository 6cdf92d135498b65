package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/app"
)

const (
	envHTTPAddr            = "COMMERCE_HTTP_ADDR"
	envGRPCAddr            = "COMMERCE_GRPC_ADDR"
	envMetricsAddr         = "COMMERCE_METRICS_ADDR"
	envShutdownTimeout     = "COMMERCE_SHUTDOWN_TIMEOUT"
	envStorageDriver       = "COMMERCE_STORAGE_DRIVER"
	envPostgresDSN         = "COMMERCE_POSTGRES_DSN"
	envPostgresAutoMigrate = "COMMERCE_POSTGRES_AUTO_MIGRATE"
	envTxMaxAttempts       = "COMMERCE_TX_MAX_ATTEMPTS"
	envKafkaBrokers        = "COMMERCE_KAFKA_BROKERS"
	envKafkaOrderTopic     = "COMMERCE_KAFKA_ORDER_TOPIC"
	envKafkaDLQTopic       = "COMMERCE_KAFKA_DLQ_TOPIC"
	envKafkaPaymentTopic   = "COMMERCE_KAFKA_PAYMENT_TOPIC"
	envKafkaConsumerGroup  = "COMMERCE_KAFKA_CONSUMER_GROUP"
	envOutboxPollInterval  = "COMMERCE_OUTBOX_INTERVAL"
	envOutboxBatchSize     = "COMMERCE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "COMMERCE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "COMMERCE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "COMMERCE_OUTBOX_MAX_PENDING"
	envOrderPendingTTL     = "COMMERCE_ORDER_PENDING_TTL"
	envExpiryInterval      = "COMMERCE_ORDER_EXPIRY_INTERVAL"
	envExpiryBatchSize     = "COMMERCE_ORDER_EXPIRY_BATCH_SIZE"
	envOTLPEndpoint        = "COMMERCE_OTLP_ENDPOINT"
	envOTLPInsecure        = "COMMERCE_OTLP_INSECURE"
	envServiceName         = "COMMERCE_SERVICE_NAME"
	envLogLevel            = "COMMERCE_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", envLogLevel, err)
	}
	log.SetLevel(level)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение оставляет значение по умолчанию и возвращается предупреждением.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	str(envPostgresDSN, &cfg.PostgresDSN)
	if cfg.PostgresDSN != "" {
		cfg.StorageDriver = app.StorageDriverPostgres
	}
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	integer(envTxMaxAttempts, &cfg.TxMaxAttempts, positive, "must be > 0")

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	str(envKafkaOrderTopic, &cfg.KafkaOrderTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	str(envKafkaPaymentTopic, &cfg.KafkaPaymentTopic)
	str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	duration(envOrderPendingTTL, &cfg.OrderPendingTTL, nonNegativeDuration, "must be >= 0")
	duration(envExpiryInterval, &cfg.ExpiryInterval, positiveDuration, "must be > 0")
	integer(envExpiryBatchSize, &cfg.ExpiryBatchSize, positive, "must be > 0")

	str(envOTLPEndpoint, &cfg.OTLPEndpoint)
	boolean(envOTLPInsecure, &cfg.OTLPInsecure)
	str(envServiceName, &cfg.ServiceName)

	return cfg, warnings
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	if err := setupLogger(os.LookupEnv); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.WithError(warning).Warn("invalid config value, using default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_brokers":  cfg.KafkaBrokers,
	}).Info("запускаем commerce service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("commerce service остановлен")
}
