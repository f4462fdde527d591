package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// Page size bounds for order listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// OrderStatistics aggregates a set of orders.
type OrderStatistics struct {
	OrderCount        int64                        `json:"order_count"`
	TotalSales        decimal.Decimal              `json:"total_sales"`
	AverageOrderValue decimal.Decimal              `json:"average_order_value"`
	ByStatus          map[models.OrderStatus]int64 `json:"by_status"`
}

// OrderService handles business logic related to orders.
type OrderService struct {
	store     repositories.Store
	publisher MessagePublisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewOrderService creates a new OrderService. publisher may be nil, in which
// case lifecycle events are not sent.
func NewOrderService(store repositories.Store, publisher MessagePublisher, log zerolog.Logger) *OrderService {
	return &OrderService{
		store:     store,
		publisher: publisher,
		log:       log.With().Str("component", "order_service").Logger(),
		now:       time.Now,
	}
}

// CreateOrder places an order for the principal. The availability check, the
// order insert and the stock decrement share one transaction, so a rejected
// order leaves every product's stock untouched.
func (s *OrderService) CreateOrder(ctx context.Context, p Principal, in CreateOrderInput) (*models.Order, error) {
	if err := validateCart(in.Items); err != nil {
		metrics.OrdersRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}
	reqs := in.stockRequests()

	var order *models.Order
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		ok, results, err := tx.Stock().CheckAvailability(ctx, reqs)
		if err != nil {
			return err
		}
		if !ok {
			return &InsufficientStockError{Details: unavailable(results)}
		}

		order, err = BuildOrder(p.UserID, in.ShippingAddress, in.Items, results, s.now())
		if err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		if err := tx.Stock().DecrementStock(ctx, reqs); err != nil {
			var conflict *repositories.StockConflictError
			if errors.As(err, &conflict) {
				detail, derr := conflictDetail(ctx, tx, reqs, conflict.ProductID)
				if derr != nil {
					return derr
				}
				return &InsufficientStockError{Details: []repositories.StockCheckResult{detail}}
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			metrics.OrdersRejected.WithLabelValues("insufficient_stock").Inc()
		}
		return nil, translate(s.log, "create order", err)
	}

	metrics.OrdersCreated.Inc()
	metrics.OrderValue.Observe(order.TotalAmount.InexactFloat64())
	s.log.Info().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Int("items", len(order.Items)).
		Msg("order created")

	s.publish(ctx, newOrderEvent(EventOrderCreated, order, p, s.now()))
	return order, nil
}

// conflictDetail re-reads a product whose decrement lost a race so the
// rejection reports the stock that is actually left.
func conflictDetail(ctx context.Context, tx repositories.Store, reqs []repositories.StockRequest, productID string) (repositories.StockCheckResult, error) {
	detail := repositories.StockCheckResult{ProductID: productID}
	for _, r := range reqs {
		if r.ProductID == productID {
			detail.Requested += r.Quantity
		}
	}

	product, err := tx.Products().GetByID(ctx, productID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		detail.Reason = "product not found"
		return detail, nil
	case err != nil:
		return detail, err
	}
	detail.ProductName = product.Name
	detail.Available = product.StockQuantity
	detail.Reason = fmt.Sprintf("insufficient stock: requested %d, available %d", detail.Requested, product.StockQuantity)
	return detail, nil
}

// GetOrder returns an order the principal is allowed to see.
func (s *OrderService) GetOrder(ctx context.Context, p Principal, id string) (*models.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, translate(s.log, "get order", err)
	}
	if err := canViewOrder(p, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns orders across all users. Admin only.
func (s *OrderService) ListOrders(ctx context.Context, p Principal, filter repositories.OrderFilter) ([]models.Order, error) {
	if err := requireAdmin(p, "list all orders"); err != nil {
		return nil, err
	}
	if err := validateOrderFilter(filter); err != nil {
		return nil, err
	}
	filter.Offset, filter.Limit = normalizePage(filter.Offset, filter.Limit)

	orders, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		return nil, translate(s.log, "list orders", err)
	}
	return orders, nil
}

// ListUserOrders returns the principal's own orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, p Principal, offset, limit int) ([]models.Order, error) {
	userID := p.UserID
	filter := repositories.OrderFilter{UserID: &userID}
	filter.Offset, filter.Limit = normalizePage(offset, limit)

	orders, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		return nil, translate(s.log, "list user orders", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order to status. Admin only.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, p Principal, id string, status models.OrderStatus) (*models.Order, error) {
	if err := requireAdmin(p, "update order status"); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, status)
	}

	var (
		order    *models.Order
		previous models.OrderStatus
	)
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		current, err := tx.Orders().GetByID(ctx, id)
		if err != nil {
			return err
		}
		previous = current.Status
		if err := tx.Orders().UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		order, err = tx.Orders().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, translate(s.log, "update order status", err)
	}

	metrics.OrderStatusTransitions.WithLabelValues(string(status)).Inc()
	s.log.Info().
		Str("order_id", id).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("order status changed")

	event := newOrderEvent(EventOrderStatusChanged, order, p, s.now())
	event.PreviousStatus = previous
	s.publish(ctx, event)
	return order, nil
}

// DeleteOrder removes an order. Admins may delete any order; owners only
// their own pending orders.
func (s *OrderService) DeleteOrder(ctx context.Context, p Principal, id string) error {
	var deleted *models.Order
	err := s.store.WithinTx(ctx, func(tx repositories.Store) error {
		order, err := tx.Orders().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := canDeleteOrder(p, order); err != nil {
			return err
		}
		deleted = order
		return tx.Orders().Delete(ctx, id)
	})
	if err != nil {
		return translate(s.log, "delete order", err)
	}

	metrics.OrdersDeleted.Inc()
	s.log.Info().Str("order_id", id).Str("actor_id", p.UserID).Msg("order deleted")
	s.publish(ctx, newOrderEvent(EventOrderDeleted, deleted, p, s.now()))
	return nil
}

// UserStatistics aggregates the principal's own orders.
func (s *OrderService) UserStatistics(ctx context.Context, p Principal) (*OrderStatistics, error) {
	return s.statistics(ctx, p.UserID)
}

// PlatformStatistics aggregates every order. Admin only.
func (s *OrderService) PlatformStatistics(ctx context.Context, p Principal) (*OrderStatistics, error) {
	if err := requireAdmin(p, "view platform statistics"); err != nil {
		return nil, err
	}
	return s.statistics(ctx, "")
}

func (s *OrderService) statistics(ctx context.Context, userID string) (*OrderStatistics, error) {
	orders := s.store.Orders()
	totals, err := orders.Totals(ctx, userID)
	if err != nil {
		return nil, translate(s.log, "aggregate orders", err)
	}
	counts, err := orders.CountByStatus(ctx, userID)
	if err != nil {
		return nil, translate(s.log, "aggregate orders", err)
	}

	stats := &OrderStatistics{
		OrderCount:        totals.OrderCount,
		TotalSales:        totals.TotalSales.Round(2),
		AverageOrderValue: decimal.Zero,
		ByStatus:          make(map[models.OrderStatus]int64, len(models.OrderStatuses)),
	}
	for _, st := range models.OrderStatuses {
		stats.ByStatus[st] = 0
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
	}
	if totals.OrderCount > 0 {
		stats.AverageOrderValue = totals.TotalSales.Div(decimal.NewFromInt(totals.OrderCount)).Round(2)
	}
	return stats, nil
}

// publish sends event without failing the calling operation.
func (s *OrderService) publish(ctx context.Context, event OrderEvent) {
	if s.publisher == nil {
		return
	}
	body, err := event.marshal()
	if err != nil {
		s.log.Error().Err(err).Str("event", event.Type).Msg("failed to encode order event")
		return
	}
	if err := s.publisher.Publish(ctx, event.Type, body); err != nil {
		metrics.EventsPublished.WithLabelValues(event.Type, "error").Inc()
		s.log.Warn().Err(err).Str("event", event.Type).Str("order_id", event.OrderID).Msg("failed to publish order event")
		return
	}
	metrics.EventsPublished.WithLabelValues(event.Type, "ok").Inc()
}

func unavailable(results []repositories.StockCheckResult) []repositories.StockCheckResult {
	out := make([]repositories.StockCheckResult, 0, len(results))
	for _, r := range results {
		if !r.IsAvailable {
			out = append(out, r)
		}
	}
	return out
}

func validateOrderFilter(f repositories.OrderFilter) error {
	if f.Status != nil && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, *f.Status)
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return fmt.Errorf("%w: start_date is after end_date", ErrInvalidInput)
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		return fmt.Errorf("%w: min_amount is greater than max_amount", ErrInvalidInput)
	}
	return nil
}

// normalizePage clamps offset and limit into the supported range.
func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return offset, limit
}
