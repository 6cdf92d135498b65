package app

import (
	"time"

	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
)

// Поддерживаемые движки хранения.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	TxMaxAttempts int

	// Пустой список брокеров отключает публикацию outbox и consumer результатов оплаты.
	KafkaBrokers       []string
	KafkaOrderTopic    string
	KafkaDLQTopic      string
	KafkaPaymentTopic  string
	KafkaConsumerGroup string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	// OrderPendingTTL <= 0 отключает автоматическую отмену зависших заказов.
	OrderPendingTTL time.Duration
	ExpiryInterval  time.Duration
	ExpiryBatchSize int

	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
}

// DefaultConfig возвращает конфигурацию для локального запуска на in-memory движке.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		MetricsAddr:     ":9090",
		ShutdownTimeout: 5 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		TxMaxAttempts: coordinator.DefaultConfig().MaxAttempts,

		KafkaOrderTopic:    kafka.TopicOrderEvents,
		KafkaDLQTopic:      kafka.TopicDeadLetterQueue,
		KafkaPaymentTopic:  kafka.TopicPaymentResults,
		KafkaConsumerGroup: "commerce-service",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   1000,

		OrderPendingTTL: 30 * time.Minute,
		ExpiryInterval:  time.Minute,
		ExpiryBatchSize: 100,

		ServiceName:  "commerce-service",
		OTLPInsecure: true,
	}
}

func (c Config) kafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
