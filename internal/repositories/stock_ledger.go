package repositories

import (
	"context"

	"github.com/shopspring/decimal"
)

// StockRequest is one requested cart line.
type StockRequest struct {
	ProductID string
	Quantity  int
}

// StockCheckResult is the availability verdict for one requested line.
// Requested is the product's total quantity across the whole request, so a
// product split over several lines reports the same figure on each.
type StockCheckResult struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Requested   int             `json:"requested"`
	Available   int             `json:"available"`
	IsAvailable bool            `json:"is_available"`
	Reason      string          `json:"reason,omitempty"`
	UnitPrice   decimal.Decimal `json:"-"`
}

// StockLedger reads and updates per-product stock counters.
type StockLedger interface {
	// CheckAvailability returns one result per request, in request order.
	// It never mutates stock.
	CheckAvailability(ctx context.Context, items []StockRequest) (bool, []StockCheckResult, error)
	// DecrementStock subtracts each requested quantity, failing with
	// ErrStockConflict when a product no longer has enough stock.
	DecrementStock(ctx context.Context, items []StockRequest) error
}
