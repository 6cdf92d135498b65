package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("COMMERCE_POSTGRES_TEST_DSN"))
}

func TestInitStorage_Memory(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{StorageDriverMemory, "", " Memory "} {
		engine, err := initStorage(context.Background(), Config{StorageDriver: driver}, log.WithField("test", "memory-storage"))
		require.NoError(t, err)
		require.Equal(t, StorageDriverMemory, engine.driver)
		require.NotNil(t, engine.tx)
		require.NotNil(t, engine.outbox)
		require.NoError(t, engine.Ping(context.Background()))
		require.NoError(t, engine.close())
	}
}

func TestInitStorage_MemoryTxRoundTrip(t *testing.T) {
	engine, err := initStorage(context.Background(), DefaultConfig(), log.WithField("test", "memory-storage"))
	require.NoError(t, err)

	ctx := context.Background()
	err = engine.tx.WithinTx(ctx, domain.TxOptions{}, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder, Payload: []byte(`{}`)})
		return err
	})
	require.NoError(t, err)

	stats, err := engine.outbox.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}

func TestInitStorage_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initStorage(context.Background(), Config{StorageDriver: StorageDriverPostgres}, log.WithField("test", "postgres-missing-dsn"))
	require.ErrorContains(t, err, "requires a DSN")
}

func TestInitStorage_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initStorage(context.Background(), Config{StorageDriver: "sqlite"}, log.WithField("test", "unsupported-driver"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitStorage_Postgres(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	engine, err := initStorage(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = engine.close() }()

	require.Equal(t, StorageDriverPostgres, engine.driver)
	require.NoError(t, engine.Ping(context.Background()))
}
