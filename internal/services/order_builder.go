package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// OrderItemInput is one requested cart line.
type OrderItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderInput is the payload for placing an order.
type CreateOrderInput struct {
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	Items           []OrderItemInput       `json:"items" validate:"required,min=1,dive"`
}

func (in CreateOrderInput) stockRequests() []repositories.StockRequest {
	reqs := make([]repositories.StockRequest, 0, len(in.Items))
	for _, it := range in.Items {
		reqs = append(reqs, repositories.StockRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return reqs
}

func validateCart(items []OrderItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	for i, it := range items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidOrder, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidOrder, i)
		}
	}
	return nil
}

// BuildOrder assembles a pending order from checked cart lines. results must
// be the availability results for items, in the same order, all available.
func BuildOrder(userID string, address models.ShippingAddress, items []OrderItemInput, results []repositories.StockCheckResult, now time.Time) (*models.Order, error) {
	if len(items) != len(results) {
		return nil, fmt.Errorf("%w: %d items but %d stock results", ErrInvalidOrder, len(items), len(results))
	}

	total := decimal.Zero
	orderItems := make([]models.OrderItem, 0, len(items))
	for i, it := range items {
		res := results[i]
		if res.ProductID != it.ProductID || !res.IsAvailable {
			return nil, fmt.Errorf("%w: product %s is not available", ErrInvalidOrder, it.ProductID)
		}
		subtotal := res.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		orderItems = append(orderItems, models.OrderItem{
			ProductID:   it.ProductID,
			ProductName: res.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   res.UnitPrice,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}

	return &models.Order{
		UserID:          userID,
		OrderDate:       now.UTC(),
		Status:          models.OrderStatusPending,
		TotalAmount:     total,
		ShippingAddress: address,
		Items:           orderItems,
	}, nil
}
