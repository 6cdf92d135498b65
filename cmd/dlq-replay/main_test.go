package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, env(map[string]string{envKafkaBrokers: " kafka-1:9092, ,kafka-2:9092 "}), io.Discard)
	require.NoError(t, err)
	require.Equal(t, config{
		brokers:     []string{"kafka-1:9092", "kafka-2:9092"},
		dlqTopic:    kafka.TopicDeadLetterQueue,
		eventsTopic: kafka.TopicOrderEvents,
		limit:       defaultLimit,
		idleTimeout: defaultIdleTimeout,
	}, cfg)
}

func TestParseConfig_FlagsOverrideEnv(t *testing.T) {
	getenv := env(map[string]string{
		envKafkaBrokers:    "env:9092",
		envKafkaDLQTopic:   "env.dlq",
		envKafkaOrderTopic: "env.events",
	})
	cfg, err := parseConfig([]string{
		"-brokers", "flag:9092",
		"-limit", "5",
		"-execute",
		"-from-newest",
		"-idle-timeout", "300ms",
	}, getenv, io.Discard)
	require.NoError(t, err)
	require.Equal(t, []string{"flag:9092"}, cfg.brokers)
	require.Equal(t, "env.dlq", cfg.dlqTopic)
	require.Equal(t, "env.events", cfg.eventsTopic)
	require.Equal(t, 5, cfg.limit)
	require.True(t, cfg.execute)
	require.True(t, cfg.fromNewest)
	require.Equal(t, 300*time.Millisecond, cfg.idleTimeout)
}

func TestParseConfig_Invalid(t *testing.T) {
	withBrokers := env(map[string]string{envKafkaBrokers: "kafka:9092"})

	_, err := parseConfig(nil, env(nil), io.Discard)
	require.ErrorIs(t, err, errBrokersRequired)

	for _, args := range [][]string{
		{"-limit", "0"},
		{"-idle-timeout", "-1s"},
		{"-dlq-topic", " "},
		{"-events-topic", ""},
		{"-unknown"},
	} {
		_, err := parseConfig(args, withBrokers, io.Discard)
		require.Error(t, err, "args %v", args)
	}

	_, err = parseConfig([]string{"-h"}, withBrokers, io.Discard)
	require.ErrorIs(t, err, flag.ErrHelp)
}

func stubKafka(t *testing.T, deps kafkaDeps, err error) {
	t.Helper()
	original := openKafka
	openKafka = func(config, *log.Entry) (kafkaDeps, error) { return deps, err }
	t.Cleanup(func() { openKafka = original })
}

func TestRun_ClosesResources(t *testing.T) {
	closed := 0
	stubKafka(t, kafkaDeps{
		offsets: &stubOffsets{windows: map[int32]offsetWindow{0: {oldest: 0, newest: 1}}},
		source:  &stubSource{readers: map[int32]*stubReader{0: newStubReader(0, 0, consumerFailure(`{}`))}},
		closers: []func() error{
			func() error { closed++; return nil },
			func() error { closed++; return errors.New("already closed") },
		},
	}, nil)

	cfg := config{
		brokers:     []string{"kafka:9092"},
		dlqTopic:    kafka.TopicDeadLetterQueue,
		eventsTopic: kafka.TopicOrderEvents,
		limit:       10,
		idleTimeout: time.Second,
	}
	got, err := run(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	require.Equal(t, summary{scanned: 1, replayed: 1}, got)
	require.Equal(t, 2, closed)
}

func TestRun_OpenFailure(t *testing.T) {
	stubKafka(t, kafkaDeps{}, sarama.ErrOutOfBrokers)

	_, err := run(context.Background(), config{brokers: []string{"kafka:9092"}, limit: 1, idleTimeout: time.Second}, quietLogger())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}
