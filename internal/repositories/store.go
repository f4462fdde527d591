package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Store groups the repositories that share one database handle. A Store
// obtained inside WithinTx is bound to that transaction, so every repository
// it hands out reads and writes through the same session.
type Store interface {
	Users() UserRepository
	Products() ProductRepository
	Orders() OrderRepository
	Stock() StockLedger
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

// GORMStore is the GORM implementation of Store.
type GORMStore struct {
	db *gorm.DB
}

// NewGORMStore creates a new GORMStore.
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

// DB exposes the handle the store was built on.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

func (s *GORMStore) Users() UserRepository {
	return NewGORMUserRepository(s.db)
}

func (s *GORMStore) Products() ProductRepository {
	return NewGORMProductRepository(s.db)
}

func (s *GORMStore) Orders() OrderRepository {
	return NewGORMOrderRepository(s.db)
}

func (s *GORMStore) Stock() StockLedger {
	return NewGORMStockLedger(s.db)
}

// WithinTx runs fn inside a single transaction. The transaction commits when
// fn returns nil and rolls back on any error or panic.
func (s *GORMStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGORMStore(tx))
	})
}

// Ping checks that the underlying connection pool is reachable.
func (s *GORMStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

var _ Store = (*GORMStore)(nil)
