package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// GORMStockLedger is a GORM implementation of StockLedger.
type GORMStockLedger struct {
	db *gorm.DB
}

// NewGORMStockLedger creates a new instance of GORMStockLedger.
func NewGORMStockLedger(db *gorm.DB) *GORMStockLedger {
	return &GORMStockLedger{db: db}
}

// CheckAvailability compares each request with the current stock. Lines that
// name the same product are judged against, and report, their combined
// demand.
func (l *GORMStockLedger) CheckAvailability(ctx context.Context, items []StockRequest) (bool, []StockCheckResult, error) {
	ids := make([]string, 0, len(items))
	demand := make(map[string]int, len(items))
	for _, it := range items {
		if _, seen := demand[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		demand[it.ProductID] += it.Quantity
	}

	var products []models.Product
	if len(ids) > 0 {
		if err := l.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
			return false, nil, fmt.Errorf("failed to load products for stock check: %w", err)
		}
	}
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	allAvailable := true
	results := make([]StockCheckResult, 0, len(items))
	for _, it := range items {
		res := StockCheckResult{ProductID: it.ProductID, Requested: demand[it.ProductID]}
		p, ok := byID[it.ProductID]
		switch {
		case !ok:
			res.Reason = "product not found"
		case p.StockQuantity < demand[it.ProductID]:
			res.ProductName = p.Name
			res.Available = p.StockQuantity
			res.UnitPrice = p.Price
			res.Reason = fmt.Sprintf("insufficient stock: requested %d, available %d", demand[it.ProductID], p.StockQuantity)
		default:
			res.ProductName = p.Name
			res.Available = p.StockQuantity
			res.UnitPrice = p.Price
			res.IsAvailable = true
		}
		if !res.IsAvailable {
			allAvailable = false
		}
		results = append(results, res)
	}
	return allAvailable, results, nil
}

// DecrementStock applies one conditional UPDATE per line. A line whose guard
// fails aborts the whole call with a StockConflictError; callers run it
// inside WithinTx so earlier decrements are rolled back.
func (l *GORMStockLedger) DecrementStock(ctx context.Context, items []StockRequest) error {
	db := l.db.WithContext(ctx)
	now := time.Now().UTC()
	for _, it := range items {
		res := db.Model(&models.Product{}).
			Where("id = ? AND stock_quantity >= ?", it.ProductID, it.Quantity).
			Updates(map[string]interface{}{
				"stock_quantity": gorm.Expr("stock_quantity - ?", it.Quantity),
				"updated_at":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to decrement stock for product %s: %w", it.ProductID, res.Error)
		}
		if res.RowsAffected == 0 {
			return &StockConflictError{ProductID: it.ProductID, Requested: it.Quantity}
		}
	}
	return nil
}

var _ StockLedger = (*GORMStockLedger)(nil)
