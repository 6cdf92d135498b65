package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale: число знаков после запятой, с которым хранится цена.
const PriceScale = 2

// Product описывает позицию каталога вместе с доступным остатком.
type Product struct {
	ID   string
	Name string
	// Price: цена за единицу, неотрицательная.
	Price decimal.Decimal
	// Quantity: доступный остаток. Меняется только через складской журнал.
	Quantity  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля товара, которые задаёт каталог.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrPriceNegative)
	}
	if !p.Price.Equal(p.Price.Truncate(PriceScale)) {
		errs = append(errs, ErrPricePrecision)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}
