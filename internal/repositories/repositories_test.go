package repositories_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

func newStore(t *testing.T) *repositories.GORMStore {
	t.Helper()
	opts := database.Options{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	db, err := database.Open(opts)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, opts))
	t.Cleanup(func() { database.Close(db) })
	return repositories.NewGORMStore(db)
}

func createProduct(t *testing.T, store repositories.Store, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock}
	require.NoError(t, store.Products().Create(context.Background(), p))
	return p
}

func createOrder(t *testing.T, store repositories.Store, userID string, product *models.Product, qty int, at time.Time) *models.Order {
	t.Helper()
	subtotal := product.Price.Mul(decimal.NewFromInt(int64(qty)))
	order := &models.Order{
		UserID:      userID,
		OrderDate:   at.UTC(),
		Status:      models.OrderStatusPending,
		TotalAmount: subtotal,
		ShippingAddress: models.ShippingAddress{
			AddressLine1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701", Country: "US",
		},
		Items: []models.OrderItem{{
			ProductID: product.ID, ProductName: product.Name, Quantity: qty,
			UnitPrice: product.Price, Subtotal: subtotal,
		}},
	}
	require.NoError(t, store.Orders().Create(context.Background(), order))
	return order
}

func TestStockLedger_CheckAvailability(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	widget := createProduct(t, store, "Widget", "10.00", 5)
	gadget := createProduct(t, store, "Gadget", "2.00", 1)

	ok, results, err := store.Stock().CheckAvailability(ctx, []repositories.StockRequest{
		{ProductID: widget.ID, Quantity: 2},
		{ProductID: gadget.ID, Quantity: 3},
		{ProductID: "missing", Quantity: 1},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, results, 3)

	assert.True(t, results[0].IsAvailable)
	assert.Equal(t, "Widget", results[0].ProductName)
	assert.True(t, results[0].UnitPrice.Equal(decimal.RequireFromString("10")))

	assert.False(t, results[1].IsAvailable)
	assert.Equal(t, 1, results[1].Available)
	assert.Equal(t, "insufficient stock: requested 3, available 1", results[1].Reason)

	assert.False(t, results[2].IsAvailable)
	assert.Equal(t, "product not found", results[2].Reason)

	ok, _, err = store.Stock().CheckAvailability(ctx, []repositories.StockRequest{{ProductID: widget.ID, Quantity: 5}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStockLedger_DecrementRollsBackOnConflict(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	widget := createProduct(t, store, "Widget", "10.00", 5)
	gadget := createProduct(t, store, "Gadget", "2.00", 1)

	err := store.WithinTx(ctx, func(tx repositories.Store) error {
		return tx.Stock().DecrementStock(ctx, []repositories.StockRequest{
			{ProductID: widget.ID, Quantity: 4},
			{ProductID: gadget.ID, Quantity: 2},
		})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, repositories.ErrStockConflict)

	var conflict *repositories.StockConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, gadget.ID, conflict.ProductID)

	got, err := store.Products().GetByID(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity, "earlier decrement must be rolled back")

	require.NoError(t, store.Stock().DecrementStock(ctx, []repositories.StockRequest{{ProductID: widget.ID, Quantity: 5}}))
	got, err = store.Products().GetByID(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockQuantity)
}

func TestProductRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	createProduct(t, store, "Laptop", "999.99", 3)
	createProduct(t, store, "Laptop Stand", "39.50", 0)
	createProduct(t, store, "Mouse", "19.99", 40)

	all, err := store.Products().List(ctx, repositories.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Laptop", all[0].Name)

	search, err := store.Products().List(ctx, repositories.ProductFilter{Search: "laptop"})
	require.NoError(t, err)
	assert.Len(t, search, 2)

	inStock, err := store.Products().List(ctx, repositories.ProductFilter{Search: "laptop", InStockOnly: true})
	require.NoError(t, err)
	require.Len(t, inStock, 1)
	assert.Equal(t, "Laptop", inStock[0].Name)

	lo, hi := decimal.RequireFromString("20"), decimal.RequireFromString("1000")
	priced, err := store.Products().List(ctx, repositories.ProductFilter{PriceMin: &lo, PriceMax: &hi})
	require.NoError(t, err)
	assert.Len(t, priced, 2)

	paged, err := store.Products().List(ctx, repositories.ProductFilter{Offset: 2, Limit: 5})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "Mouse", paged[0].Name)
}

func TestStockLedger_DuplicateLinesReportCombinedDemand(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	widget := createProduct(t, store, "Widget", "10.00", 5)

	ok, results, err := store.Stock().CheckAvailability(ctx, []repositories.StockRequest{
		{ProductID: widget.ID, Quantity: 2},
		{ProductID: widget.ID, Quantity: 4},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.False(t, res.IsAvailable)
		assert.Equal(t, 6, res.Requested)
		assert.Equal(t, 5, res.Available)
		assert.Equal(t, "insufficient stock: requested 6, available 5", res.Reason)
	}
}

func TestProductRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	widget := createProduct(t, store, "Widget", "10.00", 5)
	spare := createProduct(t, store, "Spare", "1.00", 5)
	createOrder(t, store, "user-1", widget, 1, time.Now())

	stock, expected := 9, 5
	price := decimal.RequireFromString("12.34")
	require.NoError(t, store.Products().Update(ctx, widget.ID, repositories.ProductChanges{
		Price: &price, StockQuantity: &stock, ExpectedStock: &expected,
	}))
	got, err := store.Products().GetByID(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.StockQuantity)
	assert.Equal(t, "12.34", got.Price.StringFixed(2))
	assert.Equal(t, "Widget", got.Name)

	name := "x"
	err = store.Products().Update(ctx, "missing", repositories.ProductChanges{Name: &name})
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	err = store.Products().Update(ctx, "missing", repositories.ProductChanges{StockQuantity: &stock, ExpectedStock: &expected})
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.ErrorIs(t, store.Products().Delete(ctx, widget.ID), repositories.ErrProductInUse)
	require.NoError(t, store.Products().Delete(ctx, spare.ID))
	assert.ErrorIs(t, store.Products().Delete(ctx, spare.ID), repositories.ErrNotFound)

	_, err = store.Products().GetByID(ctx, spare.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestProductRepository_PartialUpdateKeepsConcurrentDecrement(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	lamp := createProduct(t, store, "Lamp", "10.00", 5)

	// lamp still holds the stale stock of 5 read before the decrement
	require.NoError(t, store.Stock().DecrementStock(ctx, []repositories.StockRequest{{ProductID: lamp.ID, Quantity: 3}}))

	price := decimal.RequireFromString("11.00")
	require.NoError(t, store.Products().Update(ctx, lamp.ID, repositories.ProductChanges{Price: &price}))
	got, err := store.Products().GetByID(ctx, lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StockQuantity)
	assert.Equal(t, "11.00", got.Price.StringFixed(2))

	stock, expected := 10, lamp.StockQuantity
	err = store.Products().Update(ctx, lamp.ID, repositories.ProductChanges{StockQuantity: &stock, ExpectedStock: &expected})
	assert.ErrorIs(t, err, repositories.ErrStockConflict)
	got, err = store.Products().GetByID(ctx, lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StockQuantity)
}

func TestProductRepository_DeleteMapsForeignKeyViolation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	lamp := createProduct(t, store, "Lamp", "10.00", 5)

	// Stands in for an order item inserted after the reference count ran.
	require.NoError(t, store.DB().Callback().Delete().Before("gorm:delete").
		Register("test:fk_violation", func(tx *gorm.DB) {
			if tx.Statement.Table == "products" {
				_ = tx.AddError(gorm.ErrForeignKeyViolated)
			}
		}))

	assert.ErrorIs(t, store.Products().Delete(ctx, lamp.ID), repositories.ErrProductInUse)
	got, err := store.Products().GetByID(ctx, lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, lamp.ID, got.ID)
}

func TestOrderRepository_CreateAndAggregate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	widget := createProduct(t, store, "Widget", "2.50", 100)
	now := time.Now()

	first := createOrder(t, store, "alice", widget, 2, now.Add(-2*time.Hour))
	createOrder(t, store, "alice", widget, 4, now.Add(-time.Hour))
	createOrder(t, store, "bob", widget, 1, now)

	got, err := store.Orders().GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, first.ID, got.Items[0].OrderID)
	assert.Equal(t, "1 Main St", got.ShippingAddress.AddressLine1)

	require.NoError(t, store.Orders().UpdateStatus(ctx, first.ID, models.OrderStatusShipped))
	assert.ErrorIs(t, store.Orders().UpdateStatus(ctx, "missing", models.OrderStatusShipped), repositories.ErrNotFound)

	totals, err := store.Orders().Totals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.OrderCount)
	assert.Equal(t, "15.00", totals.TotalSales.StringFixed(2))

	totals, err = store.Orders().Totals(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.OrderCount)

	counts, err := store.Orders().CountByStatus(ctx, "")
	require.NoError(t, err)
	byStatus := map[models.OrderStatus]int64{}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	assert.Equal(t, map[models.OrderStatus]int64{models.OrderStatusPending: 2, models.OrderStatusShipped: 1}, byStatus)

	shipped := models.OrderStatusShipped
	list, err := store.Orders().List(ctx, repositories.OrderFilter{Status: &shipped})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	empty, err := store.Orders().Totals(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.OrderCount)
	assert.True(t, empty.TotalSales.IsZero())
}

func TestOrderRepository_DeleteRemovesItems(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	widget := createProduct(t, store, "Widget", "1.00", 10)
	order := createOrder(t, store, "alice", widget, 1, time.Now())

	require.NoError(t, store.Orders().Delete(ctx, order.ID))
	assert.ErrorIs(t, store.Orders().Delete(ctx, order.ID), repositories.ErrNotFound)

	var items int64
	require.NoError(t, store.DB().Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&items).Error)
	assert.Zero(t, items)

	// With no order items left the product can be removed.
	require.NoError(t, store.Products().Delete(ctx, widget.ID))
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	users := store.Users()

	alice := &models.User{Username: "alice", Email: "alice@example.com", Password: "hash", Role: models.RoleCustomer}
	require.NoError(t, users.Create(ctx, alice))
	assert.NotEmpty(t, alice.ID)

	dup := &models.User{Username: "alice", Email: "other@example.com", Password: "hash", Role: models.RoleCustomer}
	assert.ErrorIs(t, users.Create(ctx, dup), repositories.ErrDuplicate)

	byEmail, err := users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	_, err = users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	alice.FirstName = "Alice"
	require.NoError(t, users.Update(ctx, alice))
	got, err := users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.FirstName)

	bob := &models.User{Username: "bob", Email: "bob@example.com", Password: "hash", Role: models.RoleCustomer}
	require.NoError(t, users.Create(ctx, bob))
	page, err := users.List(ctx, 0, 1)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	require.NoError(t, users.Delete(ctx, bob.ID))
	assert.ErrorIs(t, users.Delete(ctx, bob.ID), repositories.ErrNotFound)
}
