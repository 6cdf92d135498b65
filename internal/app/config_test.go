package app

import (
	"testing"

	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.TxMaxAttempts != 3 {
		t.Errorf("expected TxMaxAttempts 3, got %d", cfg.TxMaxAttempts)
	}
	if cfg.kafkaEnabled() {
		t.Error("kafka must be disabled without brokers")
	}
	if cfg.KafkaOrderTopic != kafka.TopicOrderEvents || cfg.KafkaDLQTopic != kafka.TopicDeadLetterQueue || cfg.KafkaPaymentTopic != kafka.TopicPaymentResults {
		t.Errorf("unexpected kafka topics: %+v", cfg)
	}
	if cfg.OutboxPollInterval <= 0 || cfg.OutboxBatchSize <= 0 || cfg.OutboxMaxAttempts <= 0 {
		t.Errorf("outbox defaults must be positive: %+v", cfg)
	}
	if cfg.OrderPendingTTL <= 0 || cfg.ExpiryInterval <= 0 || cfg.ExpiryBatchSize <= 0 {
		t.Errorf("expiry defaults must be positive: %+v", cfg)
	}
	if cfg.OTLPEndpoint != "" {
		t.Error("tracing export must be off by default")
	}
}

func TestShutdownDeadline(t *testing.T) {
	if got := shutdownDeadline(Config{}); got != DefaultConfig().ShutdownTimeout {
		t.Errorf("zero timeout must fall back to default, got %s", got)
	}
	if got := shutdownDeadline(Config{ShutdownTimeout: 42}); got != 42 {
		t.Errorf("explicit timeout must be kept, got %s", got)
	}
}
