package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
)

// storageEngine — выбранный движок хранения вместе с его служебными ручками.
type storageEngine struct {
	driver string
	tx     domain.TxManager
	outbox domain.OutboxRepository
	ping   func(ctx context.Context) error
	close  func() error
}

// Ping делегирует проверку соединения движку.
func (e *storageEngine) Ping(ctx context.Context) error {
	return e.ping(ctx)
}

// initStorage открывает движок хранения по конфигурации.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageEngine, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Warn("using in-memory storage, data is lost on restart")
		return &storageEngine{
			driver: driver,
			tx:     store,
			outbox: store.Outbox(),
			ping:   store.Ping,
			close:  func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		return &storageEngine{
			driver: driver,
			tx:     store,
			outbox: store.Outbox(),
			ping:   store.Ping,
			close:  store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
