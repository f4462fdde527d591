package repositories

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// ProductFilter narrows a product listing.
type ProductFilter struct {
	PriceMin    *decimal.Decimal
	PriceMax    *decimal.Decimal
	InStockOnly bool
	Search      string
	Offset      int
	Limit       int
}

// ProductChanges lists the columns an update writes. Nil fields are left
// untouched in the stored row.
type ProductChanges struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	StockQuantity *int
	// ExpectedStock guards a StockQuantity write: the row is only updated
	// while its stock still equals this value.
	ExpectedStock *int
}

// IsZero reports whether no column would be written.
func (c ProductChanges) IsZero() bool {
	return c.Name == nil && c.Description == nil && c.Price == nil && c.StockQuantity == nil
}

func (c ProductChanges) columns() map[string]interface{} {
	cols := make(map[string]interface{}, 4)
	if c.Name != nil {
		cols["name"] = *c.Name
	}
	if c.Description != nil {
		cols["description"] = *c.Description
	}
	if c.Price != nil {
		cols["price"] = *c.Price
	}
	if c.StockQuantity != nil {
		cols["stock_quantity"] = *c.StockQuantity
	}
	return cols
}

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	ListAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, id string, changes ProductChanges) error
	Delete(ctx context.Context, id string) error
}
