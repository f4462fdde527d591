package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// newTestStore returns a store backed by a private in-memory SQLite database.
func newTestStore(t *testing.T) *repositories.GORMStore {
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

func seedProduct(t *testing.T, store repositories.Store, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock}
	require.NoError(t, store.Products().Create(context.Background(), p))
	return p
}

func stockOf(t *testing.T, store repositories.Store, id string) int {
	t.Helper()
	p, err := store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

// contendedStore takes units of every product a transaction has just checked,
// as a buyer committing between the check and the decrement would.
type contendedStore struct {
	repositories.Store
	taken int
}

func (s contendedStore) WithinTx(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repositories.Store) error {
		return fn(contendedStore{Store: tx, taken: s.taken})
	})
}

func (s contendedStore) Stock() repositories.StockLedger {
	return contendedLedger{StockLedger: s.Store.Stock(), taken: s.taken}
}

type contendedLedger struct {
	repositories.StockLedger
	taken int
}

func (l contendedLedger) CheckAvailability(ctx context.Context, items []repositories.StockRequest) (bool, []repositories.StockCheckResult, error) {
	ok, results, err := l.StockLedger.CheckAvailability(ctx, items)
	if err != nil || !ok {
		return ok, results, err
	}
	for _, it := range items {
		if err := l.StockLedger.DecrementStock(ctx, []repositories.StockRequest{{ProductID: it.ProductID, Quantity: l.taken}}); err != nil {
			return false, nil, err
		}
	}
	return ok, results, nil
}

// orderAfterRead runs order once, right after the first product read.
type orderAfterRead struct {
	repositories.ProductRepository
	order func()
	done  bool
}

func (r *orderAfterRead) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, err := r.ProductRepository.GetByID(ctx, id)
	if err == nil && !r.done {
		r.done = true
		r.order()
	}
	return p, err
}
