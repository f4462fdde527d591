package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

type OrderServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *repositories.GORMStore
	publisher *MockPublisher
	service   *services.OrderService
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newTestStore(s.T())
	s.publisher = new(MockPublisher)
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	s.service = services.NewOrderService(s.store, s.publisher, zerolog.Nop())
}

func (s *OrderServiceSuite) placeOrder(p services.Principal, items ...services.OrderItemInput) (*models.Order, error) {
	return s.service.CreateOrder(s.ctx, p, services.CreateOrderInput{ShippingAddress: testAddress, Items: items})
}

func (s *OrderServiceSuite) mustPlaceOrder(p services.Principal, items ...services.OrderItemInput) *models.Order {
	order, err := s.placeOrder(p, items...)
	s.Require().NoError(err)
	return order
}

func (s *OrderServiceSuite) TestCreateOrder_TotalsAndStock() {
	widget := seedProduct(s.T(), s.store, "Widget", "10.00", 5)

	order := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 2})

	s.Equal("20.00", order.TotalAmount.StringFixed(2))
	s.Equal(models.OrderStatusPending, order.Status)
	s.Equal(customer.UserID, order.UserID)
	s.Require().Len(order.Items, 1)
	s.Equal("Widget", order.Items[0].ProductName)
	s.Equal("10.00", order.Items[0].UnitPrice.StringFixed(2))
	s.Equal(3, stockOf(s.T(), s.store, widget.ID))

	stored, err := s.service.GetOrder(s.ctx, customer, order.ID)
	s.Require().NoError(err)
	s.Equal("20.00", stored.TotalAmount.StringFixed(2))
	s.Len(stored.Items, 1)
}

func (s *OrderServiceSuite) TestCreateOrder_PublishesCreatedEvent() {
	widget := seedProduct(s.T(), s.store, "Widget", "1.50", 10)

	order := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 4})

	s.publisher.AssertCalled(s.T(), "Publish", mock.Anything, services.EventOrderCreated, mock.MatchedBy(func(body []byte) bool {
		var event services.OrderEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return false
		}
		return event.OrderID == order.ID && event.TotalAmount.StringFixed(2) == "6.00" && event.ItemCount == 1
	}))
}

func (s *OrderServiceSuite) TestCreateOrder_PublishFailureDoesNotFailOrder() {
	widget := seedProduct(s.T(), s.store, "Widget", "1.00", 1)
	failing := new(MockPublisher)
	failing.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	service := services.NewOrderService(s.store, failing, zerolog.Nop())

	_, err := service.CreateOrder(s.ctx, customer, services.CreateOrderInput{
		ShippingAddress: testAddress,
		Items:           []services.OrderItemInput{{ProductID: widget.ID, Quantity: 1}},
	})
	s.NoError(err)
	s.Equal(0, stockOf(s.T(), s.store, widget.ID))
}

func (s *OrderServiceSuite) TestCreateOrder_InsufficientStockLeavesStockUnchanged() {
	widget := seedProduct(s.T(), s.store, "Widget", "10.00", 5)
	gadget := seedProduct(s.T(), s.store, "Gadget", "3.00", 50)

	_, err := s.placeOrder(customer,
		services.OrderItemInput{ProductID: gadget.ID, Quantity: 1},
		services.OrderItemInput{ProductID: widget.ID, Quantity: 10},
	)

	var stockErr *services.InsufficientStockError
	s.Require().True(errors.As(err, &stockErr))
	s.ErrorIs(err, services.ErrInsufficientStock)
	s.Require().Len(stockErr.Details, 1)
	s.Equal(widget.ID, stockErr.Details[0].ProductID)
	s.Equal(10, stockErr.Details[0].Requested)
	s.Equal(5, stockErr.Details[0].Available)

	s.Equal(5, stockOf(s.T(), s.store, widget.ID))
	s.Equal(50, stockOf(s.T(), s.store, gadget.ID))

	orders, err := s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{})
	s.Require().NoError(err)
	s.Empty(orders)
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (s *OrderServiceSuite) TestCreateOrder_UnknownProduct() {
	_, err := s.placeOrder(customer, services.OrderItemInput{ProductID: "missing", Quantity: 1})

	var stockErr *services.InsufficientStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Equal("product not found", stockErr.Details[0].Reason)
}

func (s *OrderServiceSuite) TestCreateOrder_DuplicateLinesShareStock() {
	widget := seedProduct(s.T(), s.store, "Widget", "2.00", 5)

	_, err := s.placeOrder(customer,
		services.OrderItemInput{ProductID: widget.ID, Quantity: 3},
		services.OrderItemInput{ProductID: widget.ID, Quantity: 3},
	)
	s.ErrorIs(err, services.ErrInsufficientStock)
	s.Equal(5, stockOf(s.T(), s.store, widget.ID))

	order := s.mustPlaceOrder(customer,
		services.OrderItemInput{ProductID: widget.ID, Quantity: 2},
		services.OrderItemInput{ProductID: widget.ID, Quantity: 3},
	)
	s.Equal("10.00", order.TotalAmount.StringFixed(2))
	s.Equal(0, stockOf(s.T(), s.store, widget.ID))
}

func (s *OrderServiceSuite) TestCreateOrder_InvalidCart() {
	_, err := s.placeOrder(customer)
	s.ErrorIs(err, services.ErrInvalidOrder)

	_, err = s.placeOrder(customer, services.OrderItemInput{ProductID: "p", Quantity: 0})
	s.ErrorIs(err, services.ErrInvalidOrder)
}

func (s *OrderServiceSuite) TestCreateOrder_PriceSnapshot() {
	widget := seedProduct(s.T(), s.store, "Widget", "10.00", 5)
	order := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 1})

	price := widget.Price.Mul(widget.Price)
	_, err := services.NewProductService(s.store.Products(), zerolog.Nop()).
		UpdateProduct(s.ctx, admin, widget.ID, services.ProductUpdate{Price: &price})
	s.Require().NoError(err)

	stored, err := s.service.GetOrder(s.ctx, admin, order.ID)
	s.Require().NoError(err)
	s.Equal("10.00", stored.Items[0].UnitPrice.StringFixed(2))
	s.Equal("10.00", stored.TotalAmount.StringFixed(2))
}

func (s *OrderServiceSuite) TestCreateOrder_ConcurrentOrdersDoNotOversell() {
	widget := seedProduct(s.T(), s.store, "Widget", "1.00", 5)

	const buyers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.placeOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, services.ErrInsufficientStock):
				rejected++
			}
		}()
	}
	wg.Wait()

	s.Equal(5, succeeded)
	s.Equal(buyers-5, rejected)
	s.Equal(0, stockOf(s.T(), s.store, widget.ID))
}

func (s *OrderServiceSuite) TestCreateOrder_LostRaceReportsRemainingStock() {
	widget := seedProduct(s.T(), s.store, "Widget", "10.00", 5)
	service := services.NewOrderService(contendedStore{Store: s.store, taken: 4}, s.publisher, zerolog.Nop())

	_, err := service.CreateOrder(s.ctx, customer, services.CreateOrderInput{
		ShippingAddress: testAddress,
		Items:           []services.OrderItemInput{{ProductID: widget.ID, Quantity: 3}},
	})

	var stockErr *services.InsufficientStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Require().Len(stockErr.Details, 1)
	detail := stockErr.Details[0]
	s.Equal(widget.ID, detail.ProductID)
	s.Equal("Widget", detail.ProductName)
	s.Equal(3, detail.Requested)
	s.Equal(1, detail.Available)
	s.Equal("insufficient stock: requested 3, available 1", detail.Reason)
	s.Equal(5, stockOf(s.T(), s.store, widget.ID))
}

func (s *OrderServiceSuite) TestPriceEditDuringOrderKeepsDecrement() {
	widget := seedProduct(s.T(), s.store, "Widget", "10.00", 5)
	products := orderAfterRead{
		ProductRepository: s.store.Products(),
		order: func() {
			s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 3})
		},
	}
	productService := services.NewProductService(&products, zerolog.Nop())

	price := decimal.RequireFromString("12.00")
	updated, err := productService.UpdateProduct(s.ctx, admin, widget.ID, services.ProductUpdate{Price: &price})
	s.Require().NoError(err)
	s.Equal(2, updated.StockQuantity)
	s.Equal("12.00", updated.Price.StringFixed(2))
	s.Equal(2, stockOf(s.T(), s.store, widget.ID))
}

func (s *OrderServiceSuite) TestStockEditDuringOrderConflicts() {
	widget := seedProduct(s.T(), s.store, "Widget", "10.00", 5)
	products := orderAfterRead{
		ProductRepository: s.store.Products(),
		order: func() {
			s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 3})
		},
	}
	productService := services.NewProductService(&products, zerolog.Nop())

	stock := 20
	_, err := productService.UpdateProduct(s.ctx, admin, widget.ID, services.ProductUpdate{StockQuantity: &stock})
	s.ErrorIs(err, services.ErrConflict)
	s.Equal(2, stockOf(s.T(), s.store, widget.ID))
}

func (s *OrderServiceSuite) TestGetOrder_AccessControl() {
	widget := seedProduct(s.T(), s.store, "Widget", "1.00", 5)
	order := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 1})

	stranger := services.Principal{UserID: "user-2", Role: models.RoleCustomer}
	got, err := s.service.GetOrder(s.ctx, stranger, order.ID)
	s.ErrorIs(err, services.ErrPermissionDenied)
	s.Nil(got)

	_, err = s.service.GetOrder(s.ctx, admin, order.ID)
	s.NoError(err)

	_, err = s.service.GetOrder(s.ctx, customer, "does-not-exist")
	s.ErrorIs(err, services.ErrNotFound)
}

func (s *OrderServiceSuite) TestUpdateOrderStatus() {
	widget := seedProduct(s.T(), s.store, "Widget", "1.00", 5)
	order := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 1})

	updated, err := s.service.UpdateOrderStatus(s.ctx, admin, order.ID, models.OrderStatusConfirmed)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusConfirmed, updated.Status)
	s.Equal(order.TotalAmount.StringFixed(2), updated.TotalAmount.StringFixed(2))
	s.publisher.AssertCalled(s.T(), "Publish", mock.Anything, services.EventOrderStatusChanged, mock.Anything)

	_, err = s.service.UpdateOrderStatus(s.ctx, admin, order.ID, "processing")
	s.ErrorIs(err, services.ErrInvalidOrder)

	_, err = s.service.UpdateOrderStatus(s.ctx, customer, order.ID, models.OrderStatusShipped)
	s.ErrorIs(err, services.ErrPermissionDenied)

	_, err = s.service.UpdateOrderStatus(s.ctx, admin, "missing", models.OrderStatusShipped)
	s.ErrorIs(err, services.ErrNotFound)
}

func (s *OrderServiceSuite) TestDeleteOrder_OwnerRules() {
	widget := seedProduct(s.T(), s.store, "Widget", "1.00", 10)
	pending := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 1})
	confirmed := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 1})
	_, err := s.service.UpdateOrderStatus(s.ctx, admin, confirmed.ID, models.OrderStatusConfirmed)
	s.Require().NoError(err)

	stranger := services.Principal{UserID: "user-2", Role: models.RoleCustomer}
	s.ErrorIs(s.service.DeleteOrder(s.ctx, stranger, pending.ID), services.ErrPermissionDenied)
	s.ErrorIs(s.service.DeleteOrder(s.ctx, customer, confirmed.ID), services.ErrPermissionDenied)

	s.Require().NoError(s.service.DeleteOrder(s.ctx, customer, pending.ID))
	_, err = s.service.GetOrder(s.ctx, customer, pending.ID)
	s.ErrorIs(err, services.ErrNotFound)

	s.Require().NoError(s.service.DeleteOrder(s.ctx, admin, confirmed.ID))
	s.ErrorIs(s.service.DeleteOrder(s.ctx, admin, confirmed.ID), services.ErrNotFound)
}

func (s *OrderServiceSuite) TestListOrders_FiltersAndPaging() {
	widget := seedProduct(s.T(), s.store, "Widget", "5.00", 100)
	bob := services.Principal{UserID: "user-bob", Role: models.RoleCustomer}

	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	var placed []*models.Order
	for i := 0; i < 4; i++ {
		p := customer
		if i%2 == 1 {
			p = bob
		}
		order := s.mustPlaceOrder(p, services.OrderItemInput{ProductID: widget.ID, Quantity: i + 1})
		s.Require().NoError(s.store.DB().Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("order_date", base.AddDate(0, 0, i)).Error)
		placed = append(placed, order)
	}

	all, err := s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Equal(placed[3].ID, all[0].ID, "newest first")

	userID := bob.UserID
	byUser, err := s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{UserID: &userID})
	s.Require().NoError(err)
	s.Len(byUser, 2)

	start, end := base.AddDate(0, 0, 1), base.AddDate(0, 0, 2)
	ranged, err := s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{StartDate: &start, EndDate: &end})
	s.Require().NoError(err)
	s.Len(ranged, 2)

	minAmount, maxAmount := placed[1].TotalAmount, placed[2].TotalAmount
	byAmount, err := s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{MinAmount: &minAmount, MaxAmount: &maxAmount})
	s.Require().NoError(err)
	s.Len(byAmount, 2)

	page, err := s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{Offset: 1, Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(placed[2].ID, page[0].ID)

	_, err = s.service.UpdateOrderStatus(s.ctx, admin, placed[0].ID, models.OrderStatusConfirmed)
	s.Require().NoError(err)
	confirmed := models.OrderStatusConfirmed
	byStatus, err := s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{Status: &confirmed})
	s.Require().NoError(err)
	s.Require().Len(byStatus, 1)
	s.Equal(placed[0].ID, byStatus[0].ID)
	pending := models.OrderStatusPending
	byStatus, err = s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{Status: &pending})
	s.Require().NoError(err)
	s.Len(byStatus, 3)

	bad := models.OrderStatus("lost")
	_, err = s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{Status: &bad})
	s.ErrorIs(err, services.ErrInvalidOrder)

	_, err = s.service.ListOrders(s.ctx, admin, repositories.OrderFilter{StartDate: &end, EndDate: &start})
	s.ErrorIs(err, services.ErrInvalidInput)

	_, err = s.service.ListOrders(s.ctx, customer, repositories.OrderFilter{})
	s.ErrorIs(err, services.ErrPermissionDenied)

	mine, err := s.service.ListUserOrders(s.ctx, customer, 0, 0)
	s.Require().NoError(err)
	s.Len(mine, 2)
	for _, o := range mine {
		s.Equal(customer.UserID, o.UserID)
	}
}

func (s *OrderServiceSuite) TestStatistics() {
	widget := seedProduct(s.T(), s.store, "Widget", "2.50", 100)
	bob := services.Principal{UserID: "user-bob", Role: models.RoleCustomer}

	first := s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 2})
	s.mustPlaceOrder(customer, services.OrderItemInput{ProductID: widget.ID, Quantity: 4})
	s.mustPlaceOrder(bob, services.OrderItemInput{ProductID: widget.ID, Quantity: 1})
	_, err := s.service.UpdateOrderStatus(s.ctx, admin, first.ID, models.OrderStatusShipped)
	s.Require().NoError(err)

	mine, err := s.service.UserStatistics(s.ctx, customer)
	s.Require().NoError(err)
	s.Equal(int64(2), mine.OrderCount)
	s.Equal("15.00", mine.TotalSales.StringFixed(2))
	s.Equal("7.50", mine.AverageOrderValue.StringFixed(2))
	s.Equal(int64(1), mine.ByStatus[models.OrderStatusShipped])
	s.Equal(int64(1), mine.ByStatus[models.OrderStatusPending])

	platform, err := s.service.PlatformStatistics(s.ctx, admin)
	s.Require().NoError(err)
	s.Equal(int64(3), platform.OrderCount)
	s.Equal("17.50", platform.TotalSales.StringFixed(2))
	s.Equal("5.83", platform.AverageOrderValue.StringFixed(2))

	_, err = s.service.PlatformStatistics(s.ctx, customer)
	s.ErrorIs(err, services.ErrPermissionDenied)

	empty, err := s.service.UserStatistics(s.ctx, services.Principal{UserID: "nobody"})
	s.Require().NoError(err)
	s.Equal(int64(0), empty.OrderCount)
	s.True(empty.AverageOrderValue.IsZero())
}

func TestOrderService_DatabaseErrorsAreHidden(t *testing.T) {
	store := newTestStore(t)
	service := services.NewOrderService(store, nil, zerolog.Nop())
	require.NoError(t, store.DB().Migrator().DropTable(&models.Order{}))

	_, err := service.ListUserOrders(context.Background(), customer, 0, 0)
	assert.ErrorIs(t, err, services.ErrDatabase)
	assert.NotContains(t, err.Error(), "no such table")
}
