package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
)

type offsetReader interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, marker int64) (int64, error)
}

type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error)
}

type publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

type kafkaDeps struct {
	offsets   offsetReader
	source    partitionSource
	publisher publisher
	closers   []func() error
}

func (d kafkaDeps) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close kafka resource")
		}
	}
}

// openKafka подменяется в тестах.
var openKafka = func(cfg config, logger *log.Entry) (kafkaDeps, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return kafkaDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return kafkaDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}

	deps := kafkaDeps{
		offsets: client,
		source:  saramaSource{consumer: consumer},
		closers: []func() error{client.Close, consumer.Close},
	}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, logger)
	if err != nil {
		deps.close(logger)
		return kafkaDeps{}, fmt.Errorf("create kafka producer: %w", err)
	}
	deps.publisher = producer
	deps.closers = append(deps.closers, producer.Close)
	return deps, nil
}

type summary struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *summary) add(other summary) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

type replayer struct {
	cfg       config
	offsets   offsetReader
	source    partitionSource
	publisher publisher
	logger    *log.Entry
	now       func() time.Time
}

// Run обходит партиции DLQ по возрастанию номера, пока не исчерпан лимит.
// В dry-run кандидаты только логируются и учитываются в replayed.
func (r *replayer) Run(ctx context.Context) (summary, error) {
	var total summary
	if r.cfg.execute && r.publisher == nil {
		return total, errors.New("execute mode requires a publisher")
	}

	partitions, err := r.offsets.Partitions(r.cfg.dlqTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.dlqTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		got, err := r.drain(ctx, partition, budget)
		total.add(got)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *replayer) drain(ctx context.Context, partition int32, budget int) (summary, error) {
	var stats summary

	oldest, err := r.offsets.GetOffset(r.cfg.dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.dlqTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(oldest, newest-int64(budget))
	}

	reader, err := r.source.ConsumePartition(r.cfg.dlqTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	errs := reader.Errors()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, consumerErr)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.scanned++
			switch err := r.replay(ctx, msg); {
			case err == nil:
				stats.replayed++
			case errors.Is(err, errUnsupported):
				stats.skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skipping dlq message")
			default:
				return stats, err
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) replay(ctx context.Context, msg *sarama.ConsumerMessage) error {
	record, err := decodeDeadLetter(msg, r.cfg.eventsTopic, r.now())
	if err != nil {
		return err
	}

	fields := log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": record.topic,
		"key":          record.key,
	}
	if !r.cfg.execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return nil
	}
	if err := r.publisher.Publish(ctx, record.topic, record.key, record.value, record.headers); err != nil {
		return fmt.Errorf("replay offset %d to %s: %w", msg.Offset, record.topic, err)
	}
	r.logger.WithFields(fields).Debug("dlq message replayed")
	return nil
}
