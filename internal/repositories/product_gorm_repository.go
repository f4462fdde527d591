package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront/internal/models"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{db: db}
}

// List returns products matching filter, ordered by name.
func (r *GORMProductRepository) List(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.PriceMin != nil {
		q = q.Where("price >= ?", *filter.PriceMin)
	}
	if filter.PriceMax != nil {
		q = q.Where("price <= ?", *filter.PriceMax)
	}
	if filter.InStockOnly {
		q = q.Where("stock_quantity > 0")
	}
	if filter.Search != "" {
		q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var products []models.Product
	if err := q.Order("name ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// ListAll returns the full catalogue.
func (r *GORMProductRepository) ListAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get all products: %w", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// Create inserts a new product, assigning an ID when missing.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("product %s: %w", product.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update writes only the columns set in changes. A stock write guarded by
// ExpectedStock fails with ErrStockConflict once the stored stock has moved.
func (r *GORMProductRepository) Update(ctx context.Context, id string, changes ProductChanges) error {
	cols := changes.columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now().UTC()

	db := r.db.WithContext(ctx)
	q := db.Model(&models.Product{}).Where("id = ?", id)
	guarded := changes.StockQuantity != nil && changes.ExpectedStock != nil
	if guarded {
		q = q.Where("stock_quantity = ?", *changes.ExpectedStock)
	}
	res := q.Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update product: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if guarded {
		var n int64
		if err := db.Model(&models.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check product %s: %w", id, err)
		}
		if n > 0 {
			return fmt.Errorf("product %s stock is no longer %d: %w", id, *changes.ExpectedStock, ErrStockConflict)
		}
	}
	return fmt.Errorf("product %s: %w", id, ErrNotFound)
}

// Delete removes a product that no order item refers to. A reference added
// between the check and the delete surfaces as a foreign key violation and
// is reported the same way.
func (r *GORMProductRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("failed to check product references: %w", err)
		}
		if refs > 0 {
			return fmt.Errorf("product %s: %w", id, ErrProductInUse)
		}

		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("product %s: %w", id, ErrProductInUse)
	case errors.Is(err, ErrProductInUse), errors.Is(err, ErrNotFound):
		return err
	default:
		return fmt.Errorf("failed to delete product: %w", err)
	}
}

var _ ProductRepository = (*GORMProductRepository)(nil)
