package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce/internal/service/order"
	"github.com/vladislavdragonenkov/commerce/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// newOutboxWorker связывает outbox-репозиторий движка с топиками событий и DLQ.
func newOutboxWorker(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, tracerProvider trace.TracerProvider, logger *log.Entry) *outbox.Worker {
	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaOrderTopic),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
		outbox.WithTracerProvider(tracerProvider),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

// initPaymentConsumer подписывается на результаты оплаты; сообщения, которые не удалось
// применить после повторов, уходят в DLQ через тот же producer.
func initPaymentConsumer(cfg Config, orders *order.Service, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	consumerLogger := logger.WithField("component", "payment-consumer")
	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaConsumerGroup,
		[]string{cfg.KafkaPaymentTopic},
		kafka.NewPaymentResultHandler(orders, consumerLogger),
		kafka.ConsumerOptions{Logger: consumerLogger, DLQProducer: producer, DLQTopic: cfg.KafkaDLQTopic},
	)
	if err != nil {
		return nil, fmt.Errorf("create payment consumer: %w", err)
	}
	return consumer, nil
}

// runPaymentConsumer держит consumer до отмены ctx.
func runPaymentConsumer(ctx context.Context, consumer *kafka.Consumer) error {
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start payment consumer: %w", err)
	}
	<-ctx.Done()
	return consumer.Stop()
}
