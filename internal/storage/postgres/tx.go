package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// SQLSTATE, которые означают проигранную гонку и лечатся повтором всей транзакции.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateReadOnlyTransaction  = "25006"
)

// querier — общий набор методов *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithinTx открывает транзакцию READ COMMITTED и передаёт fn репозитории, работающие в ней.
// Списание остатка опирается на условный UPDATE и блокировку строки товара.
func (s *Store) WithinTx(ctx context.Context, opts domain.TxOptions, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: opts.ReadOnly})
	if err != nil {
		return classifyError(fmt.Errorf("begin tx: %w", err))
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &repositories{q: tx, readOnly: opts.ReadOnly}); err != nil {
		return classifyError(err)
	}
	if err := tx.Commit(); err != nil {
		return classifyError(fmt.Errorf("commit tx: %w", err))
	}
	committed = true
	return nil
}

// classifyError приводит ошибки драйвера к доменным: конфликты сериализации и deadlock
// становятся ErrConflict, попытка записи в read-only транзакции становится ErrReadOnlyTx.
func classifyError(err error) error {
	if err == nil || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrReadOnlyTx) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	case sqlStateReadOnlyTransaction:
		return fmt.Errorf("%w: %w", domain.ErrReadOnlyTx, err)
	default:
		return err
	}
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isUniqueViolation(err error) bool {
	return hasSQLState(err, sqlStateUniqueViolation)
}

// repositories реализует domain.Repositories поверх одной транзакции.
type repositories struct {
	q        querier
	readOnly bool
}

func (r *repositories) writable() error {
	if r.readOnly {
		return domain.ErrReadOnlyTx
	}
	return nil
}

func (r *repositories) Products() domain.ProductRepository {
	return &productRepository{r}
}

func (r *repositories) StockMovements() domain.StockMovementRepository {
	return &stockMovementRepository{r}
}

func (r *repositories) Carts() domain.CartRepository {
	return &cartRepository{r}
}

func (r *repositories) Orders() domain.OrderRepository {
	return &orderRepository{r}
}

func (r *repositories) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: r.q, readOnly: r.readOnly}
}

// withLimit дописывает LIMIT к запросу, если limit положителен.
func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	args = append(args, limit)
	return query + " LIMIT $" + strconv.Itoa(len(args)), args
}

var (
	_ domain.TxManager    = (*Store)(nil)
	_ domain.Repositories = (*repositories)(nil)
)
