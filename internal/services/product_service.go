package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// maxPrice is the first value that no longer fits decimal(10,2).
var maxPrice = decimal.New(1, 8)

// ProductInput is the payload for creating a product.
type ProductInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=2000"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
}

// ProductUpdate is a partial product update. Nil fields are left unchanged.
type ProductUpdate struct {
	Name          *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity" validate:"omitempty,gte=0"`
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo repositories.ProductRepository
	log  zerolog.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, log zerolog.Logger) *ProductService {
	return &ProductService{
		repo: repo,
		log:  log.With().Str("component", "product_service").Logger(),
	}
}

// ListProducts returns a page of products matching filter.
func (s *ProductService) ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]models.Product, error) {
	if filter.PriceMin != nil && filter.PriceMax != nil && filter.PriceMin.GreaterThan(*filter.PriceMax) {
		return nil, fmt.Errorf("%w: min_price is greater than max_price", ErrInvalidInput)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Offset, filter.Limit = normalizePage(filter.Offset, filter.Limit)

	products, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, translate(s.log, "list products", err)
	}
	return products, nil
}

// GetProduct retrieves a single product by its ID.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(s.log, "get product", err)
	}
	return product, nil
}

// CreateProduct adds a product to the catalogue. Admin only.
func (s *ProductService) CreateProduct(ctx context.Context, p Principal, in ProductInput) (*models.Product, error) {
	if err := requireAdmin(p, "create products"); err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if in.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock_quantity must not be negative", ErrInvalidInput)
	}

	product := &models.Product{
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, translate(s.log, "create product", err)
	}
	s.log.Info().Str("product_id", product.ID).Str("name", product.Name).Msg("product created")
	return product, nil
}

// UpdateProduct applies a partial update. Admin only. Only the supplied
// fields are written, so a concurrent order keeps its stock decrement. An
// explicit stock_quantity replaces the value read here and fails with
// ErrConflict if an order moved the stock in between.
func (s *ProductService) UpdateProduct(ctx context.Context, p Principal, id string, in ProductUpdate) (*models.Product, error) {
	if err := requireAdmin(p, "update products"); err != nil {
		return nil, err
	}
	if in.Price != nil {
		if err := validatePrice(*in.Price); err != nil {
			return nil, err
		}
	}
	if in.StockQuantity != nil && *in.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock_quantity must not be negative", ErrInvalidInput)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(s.log, "get product", err)
	}

	changes := repositories.ProductChanges{
		Description:   in.Description,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		changes.Name = &name
	}
	if changes.IsZero() {
		return current, nil
	}
	if changes.StockQuantity != nil {
		expected := current.StockQuantity
		changes.ExpectedStock = &expected
	}

	if err := s.repo.Update(ctx, id, changes); err != nil {
		return nil, translate(s.log, "update product", err)
	}
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(s.log, "get product", err)
	}
	s.log.Info().Str("product_id", id).Msg("product updated")
	return updated, nil
}

// DeleteProduct removes a product no order refers to. Admin only.
func (s *ProductService) DeleteProduct(ctx context.Context, p Principal, id string) error {
	if err := requireAdmin(p, "delete products"); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return translate(s.log, "delete product", err)
	}
	s.log.Info().Str("product_id", id).Msg("product deleted")
	return nil
}

// validatePrice requires a positive amount with at most two decimal places.
func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidInput)
	}
	if !price.Equal(price.Round(2)) {
		return fmt.Errorf("%w: price must have at most two decimal places", ErrInvalidInput)
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return fmt.Errorf("%w: price is too large", ErrInvalidInput)
	}
	return nil
}
