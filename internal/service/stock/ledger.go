package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/service/coordinator"
)

const defaultHistoryLimit = 50

// Ledger — единственная точка изменения доступного остатка товара.
// Каждое изменение атомарно и сопровождается записью в журнал движений в той же транзакции.
type Ledger struct {
	coord  *coordinator.Coordinator
	logger *log.Entry
	now    func() time.Time
}

// NewLedger создаёт складской журнал.
func NewLedger(coord *coordinator.Coordinator, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "stock-ledger")
	}
	return &Ledger{
		coord:  coord,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reserve списывает qty единиц под заказ внутри транзакции вызывающего и возвращает новый остаток.
// ErrInsufficientStock, если остатка не хватает; ErrProductNotFound для неизвестного товара.
func (l *Ledger) Reserve(ctx context.Context, repos domain.Repositories, productID string, qty int64, orderID string) (int64, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	return l.apply(ctx, repos, productID, -qty, domain.StockReasonReserve, orderID)
}

// Release возвращает qty единиц на склад внутри транзакции вызывающего. Верхней границы нет.
func (l *Ledger) Release(ctx context.Context, repos domain.Repositories, productID string, qty int64, orderID string) (int64, error) {
	if qty <= 0 {
		return 0, domain.ErrInvalidQuantity
	}
	return l.apply(ctx, repos, productID, qty, domain.StockReasonRelease, orderID)
}

// AdjustWithin выполняет административную корректировку внутри транзакции вызывающего.
func (l *Ledger) AdjustWithin(ctx context.Context, repos domain.Repositories, productID string, delta int64) (int64, error) {
	if delta == 0 {
		return 0, domain.ErrInvalidQuantity
	}
	return l.apply(ctx, repos, productID, delta, domain.StockReasonAdjust, "")
}

// Adjust выполняет административную корректировку в собственной транзакции.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int64) (int64, error) {
	if strings.TrimSpace(productID) == "" {
		return 0, domain.ErrProductRequired
	}

	var quantity int64
	err := l.coord.Do(ctx, "stock.adjust", func(ctx context.Context, repos domain.Repositories) error {
		var err error
		quantity, err = l.AdjustWithin(ctx, repos, productID, delta)
		return err
	})
	if err != nil {
		return 0, err
	}

	l.logger.WithFields(log.Fields{
		"product_id": productID,
		"delta":      delta,
		"quantity":   quantity,
	}).Info("stock adjusted")
	return quantity, nil
}

// Available возвращает текущий доступный остаток.
func (l *Ledger) Available(ctx context.Context, productID string) (int64, error) {
	var quantity int64
	err := l.coord.Read(ctx, "stock.available", func(ctx context.Context, repos domain.Repositories) error {
		product, err := repos.Products().Get(ctx, productID)
		if err != nil {
			return err
		}
		quantity = product.Quantity
		return nil
	})
	return quantity, err
}

// History возвращает последние движения по товару, новые первыми.
func (l *Ledger) History(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var movements []domain.StockMovement
	err := l.coord.Read(ctx, "stock.history", func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Products().Get(ctx, productID); err != nil {
			return err
		}
		var err error
		movements, err = repos.StockMovements().ListByProduct(ctx, productID, limit)
		return err
	})
	return movements, err
}

func (l *Ledger) apply(ctx context.Context, repos domain.Repositories, productID string, delta int64, reason domain.StockReason, orderID string) (int64, error) {
	at := l.now()
	quantity, err := repos.Products().ApplyDelta(ctx, productID, delta, at)
	if err != nil {
		return 0, err
	}

	if err := repos.StockMovements().Append(ctx, domain.StockMovement{
		ID:            uuid.NewString(),
		ProductID:     productID,
		Delta:         delta,
		Reason:        reason,
		OrderID:       orderID,
		QuantityAfter: quantity,
		CreatedAt:     at,
	}); err != nil {
		return 0, fmt.Errorf("append stock movement: %w", err)
	}
	return quantity, nil
}
