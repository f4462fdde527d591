package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// OrderFilter narrows an order listing. Nil fields are ignored.
type OrderFilter struct {
	Status    *models.OrderStatus
	UserID    *string
	StartDate *time.Time
	EndDate   *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Offset    int
	Limit     int
}

// OrderTotals is an aggregate over a set of orders.
type OrderTotals struct {
	OrderCount int64           `json:"order_count"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

// StatusCount is the number of orders in one status.
type StatusCount struct {
	Status models.OrderStatus `json:"status"`
	Count  int64              `json:"count"`
}

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
	Delete(ctx context.Context, id string) error
	// Totals aggregates the orders of userID, or of every user when userID is empty.
	Totals(ctx context.Context, userID string) (OrderTotals, error)
	CountByStatus(ctx context.Context, userID string) ([]StatusCount, error)
}
