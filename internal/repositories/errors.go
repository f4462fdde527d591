package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is violated.
	ErrDuplicate = errors.New("duplicate record")
	// ErrProductInUse is returned when deleting a product still referenced by order items.
	ErrProductInUse = errors.New("product is referenced by existing orders")
	// ErrStockConflict is returned when a conditional stock decrement matched no row.
	ErrStockConflict = errors.New("stock changed concurrently")
)

// StockConflictError reports which product lost the decrement race.
type StockConflictError struct {
	ProductID string
	Requested int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock for product %s can no longer cover %d units", e.ProductID, e.Requested)
}

func (e *StockConflictError) Is(target error) bool {
	return target == ErrStockConflict
}
