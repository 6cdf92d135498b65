package domain

import "time"

// StockReason: причина движения по складскому журналу.
type StockReason string

const (
	// StockReasonReserve: списание под заказ.
	StockReasonReserve StockReason = "reserve"
	// StockReasonRelease: возврат резерва при отмене заказа.
	StockReasonRelease StockReason = "release"
	// StockReasonAdjust: административная корректировка каталога.
	StockReasonAdjust StockReason = "adjust"
)

// StockMovement: запись журнала изменения остатка. Пишется в той же транзакции, что и само изменение.
type StockMovement struct {
	ID            string
	ProductID     string
	Delta         int64
	Reason        StockReason
	OrderID       string
	QuantityAfter int64
	CreatedAt     time.Time
}
