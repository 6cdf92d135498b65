package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxRetries = 3
	consumerTracer    = "github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOptions задаёт параметры consumer. Пустой DLQTopic означает TopicDeadLetterQueue.
type ConsumerOptions struct {
	Logger      *log.Entry
	DLQProducer *Producer
	DLQTopic    string
	MaxRetries  int
	RetryDelay  time.Duration
}

// Consumer читает topic в составе consumer group. Сообщение, которое не удалось обработать
// за MaxRetries попыток, уходит в DLQ и помечается прочитанным.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	dlqTopic    string
	maxRetries  int
	retryDelay  time.Duration
	propagator  propagation.TextMapPropagator
	tracer      trace.Tracer
}

// NewConsumer создаёт consumer group.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ConsumerOptions) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, topics, handler, opts), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ConsumerOptions) *Consumer {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.DLQTopic == "" {
		opts.DLQTopic = TopicDeadLetterQueue
	}
	return &Consumer{
		consumer:    group,
		topics:      topics,
		handler:     handler,
		logger:      logger,
		dlqProducer: opts.DLQProducer,
		dlqTopic:    opts.DLQTopic,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		tracer:      otel.Tracer(consumerTracer),
	}
}

// Start запускает чтение в фоне.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт завершения фоновых горутин.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения партиции.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			if err := c.handleMessage(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message processing failed, offset is not committed")
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	ctx = c.textMapPropagator().Extract(ctx, consumerCarrier(message.Headers))
	ctx, span := c.tracer.Start(ctx, "kafka consume "+message.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", message.Topic),
			attribute.Int64("messaging.kafka.offset", message.Offset),
		))
	defer span.End()

	err := c.handleWithRetry(ctx, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.handler(ctx, message)
		if lastErr == nil {
			return nil
		}

		c.logger.WithError(lastErr).WithFields(log.Fields{
			"topic":       message.Topic,
			"attempt":     attempt,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed")

		if attempt < c.maxRetries && c.retryDelay > 0 {
			timer := time.NewTimer(c.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if c.dlqProducer == nil {
		return lastErr
	}
	if err := c.sendToDLQ(ctx, message, lastErr); err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}
	c.logger.WithField("topic", message.Topic).Info("message sent to DLQ after max retries")
	return nil
}

func (c *Consumer) sendToDLQ(ctx context.Context, message *sarama.ConsumerMessage, processingErr error) error {
	return c.dlqProducer.Publish(ctx, c.dlqTopic, string(message.Key), message.Value, map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderErrorMessage:  processingErr.Error(),
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
		HeaderRetryCount:    strconv.Itoa(c.maxRetries),
	})
}

func (c *Consumer) textMapPropagator() propagation.TextMapPropagator {
	if c.propagator != nil {
		return c.propagator
	}
	return otel.GetTextMapPropagator()
}
