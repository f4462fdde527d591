package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// Stock level thresholds. Each bucket holds quantities above the previous
// threshold and at or below its own.
const (
	CriticalStockThreshold = 5
	LowStockThreshold      = 10
	MediumStockThreshold   = 50
)

// StockCategory names a stock bucket. CategoryAvailable is only used for
// filtering and matches every in-stock product.
type StockCategory string

const (
	CategoryOutOfStock StockCategory = "out_of_stock"
	CategoryCritical   StockCategory = "critical"
	CategoryLow        StockCategory = "low"
	CategoryMedium     StockCategory = "medium"
	CategoryHigh       StockCategory = "high"
	CategoryAvailable  StockCategory = "available"
)

// bucketOrder is the order buckets appear in a report.
var bucketOrder = []StockCategory{CategoryOutOfStock, CategoryCritical, CategoryLow, CategoryMedium, CategoryHigh}

// Valid reports whether c can be used as a filter category.
func (c StockCategory) Valid() bool {
	if c == CategoryAvailable {
		return true
	}
	for _, b := range bucketOrder {
		if c == b {
			return true
		}
	}
	return false
}

// ClassifyStock returns the single bucket a quantity belongs to.
func ClassifyStock(quantity int) StockCategory {
	switch {
	case quantity <= 0:
		return CategoryOutOfStock
	case quantity <= CriticalStockThreshold:
		return CategoryCritical
	case quantity <= LowStockThreshold:
		return CategoryLow
	case quantity <= MediumStockThreshold:
		return CategoryMedium
	default:
		return CategoryHigh
	}
}

// ProductStock is the stock view of one product.
type ProductStock struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	StockQuantity int             `json:"stock_quantity"`
	Price         decimal.Decimal `json:"price"`
	StockValue    decimal.Decimal `json:"stock_value"`
}

// StockCategoryBucket holds the products of one stock level.
type StockCategoryBucket struct {
	Category StockCategory  `json:"category"`
	Count    int            `json:"count"`
	Products []ProductStock `json:"products"`
}

// StockSummary aggregates a report.
type StockSummary struct {
	TotalProducts         int             `json:"total_products"`
	ProductsWithStock     int             `json:"products_with_stock"`
	ProductsOutOfStock    int             `json:"products_out_of_stock"`
	ProductsCritical      int             `json:"products_critical_stock"`
	ProductsLowStock      int             `json:"products_low_stock"`
	ProductsMediumStock   int             `json:"products_medium_stock"`
	ProductsHighStock     int             `json:"products_high_stock"`
	TotalStockValue       decimal.Decimal `json:"total_stock_value"`
	AverageStockQuantity  decimal.Decimal `json:"average_stock_quantity"`
	StockHealthPercentage decimal.Decimal `json:"stock_health_percentage"`
}

// StockAlerts counts products that need attention.
type StockAlerts struct {
	OutOfStock    int `json:"out_of_stock_alerts"`
	CriticalStock int `json:"critical_stock_alerts"`
	LowStock      int `json:"low_stock_alerts"`
}

// StockHealthReport is a point-in-time view of catalogue stock levels.
type StockHealthReport struct {
	Summary     StockSummary          `json:"summary"`
	Buckets     []StockCategoryBucket `json:"buckets"`
	Alerts      StockAlerts           `json:"alerts"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Bucket returns the bucket for category, or nil.
func (r *StockHealthReport) Bucket(category StockCategory) *StockCategoryBucket {
	for i := range r.Buckets {
		if r.Buckets[i].Category == category {
			return &r.Buckets[i]
		}
	}
	return nil
}

func (r *StockHealthReport) products() []ProductStock {
	var all []ProductStock
	for _, b := range r.Buckets {
		all = append(all, b.Products...)
	}
	return all
}

// StockHealthFilter narrows a report. Zero value keeps everything.
type StockHealthFilter struct {
	Category *StockCategory
	MinStock *int
	MaxStock *int
}

// IsZero reports whether the filter has no criteria.
func (f StockHealthFilter) IsZero() bool {
	return f.Category == nil && f.MinStock == nil && f.MaxStock == nil
}

// Validate checks the filter's bounds and category.
func (f StockHealthFilter) Validate() error {
	if f.Category != nil && !f.Category.Valid() {
		return fmt.Errorf("%w: unknown stock category %q", ErrInvalidInput, *f.Category)
	}
	if f.MinStock != nil && *f.MinStock < 0 {
		return fmt.Errorf("%w: min_stock must not be negative", ErrInvalidInput)
	}
	if f.MaxStock != nil && *f.MaxStock < 0 {
		return fmt.Errorf("%w: max_stock must not be negative", ErrInvalidInput)
	}
	if f.MinStock != nil && f.MaxStock != nil && *f.MinStock > *f.MaxStock {
		return fmt.Errorf("%w: min_stock is greater than max_stock", ErrInvalidInput)
	}
	return nil
}

func (f StockHealthFilter) match(ps ProductStock) bool {
	if f.Category != nil {
		if *f.Category == CategoryAvailable {
			if ps.StockQuantity <= 0 {
				return false
			}
		} else if ClassifyStock(ps.StockQuantity) != *f.Category {
			return false
		}
	}
	if f.MinStock != nil && ps.StockQuantity < *f.MinStock {
		return false
	}
	if f.MaxStock != nil && ps.StockQuantity > *f.MaxStock {
		return false
	}
	return true
}

// BuildStockHealthReport partitions products into stock buckets and
// aggregates them.
func BuildStockHealthReport(products []models.Product, now time.Time) *StockHealthReport {
	views := make([]ProductStock, 0, len(products))
	for _, p := range products {
		views = append(views, ProductStock{
			ProductID:     p.ID,
			Name:          p.Name,
			StockQuantity: p.StockQuantity,
			Price:         p.Price,
			StockValue:    p.StockValue(),
		})
	}
	return buildReport(views, now)
}

// FilterStockHealthReport keeps the products matching filter and recomputes
// the summary over what is left.
func FilterStockHealthReport(report *StockHealthReport, filter StockHealthFilter) (*StockHealthReport, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	var kept []ProductStock
	for _, ps := range report.products() {
		if filter.match(ps) {
			kept = append(kept, ps)
		}
	}
	return buildReport(kept, report.GeneratedAt), nil
}

func buildReport(views []ProductStock, now time.Time) *StockHealthReport {
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].StockQuantity > views[j].StockQuantity
	})

	byCategory := make(map[StockCategory][]ProductStock, len(bucketOrder))
	totalValue := decimal.Zero
	inStockQty := 0
	for _, v := range views {
		cat := ClassifyStock(v.StockQuantity)
		byCategory[cat] = append(byCategory[cat], v)
		if cat != CategoryOutOfStock {
			totalValue = totalValue.Add(v.StockValue)
			inStockQty += v.StockQuantity
		}
	}

	report := &StockHealthReport{GeneratedAt: now.UTC()}
	for _, cat := range bucketOrder {
		products := byCategory[cat]
		if products == nil {
			products = []ProductStock{}
		}
		report.Buckets = append(report.Buckets, StockCategoryBucket{
			Category: cat,
			Count:    len(products),
			Products: products,
		})
	}

	s := &report.Summary
	s.TotalProducts = len(views)
	s.ProductsOutOfStock = len(byCategory[CategoryOutOfStock])
	s.ProductsCritical = len(byCategory[CategoryCritical])
	s.ProductsLowStock = len(byCategory[CategoryLow])
	s.ProductsMediumStock = len(byCategory[CategoryMedium])
	s.ProductsHighStock = len(byCategory[CategoryHigh])
	s.ProductsWithStock = s.TotalProducts - s.ProductsOutOfStock
	s.TotalStockValue = totalValue.Round(2)
	s.AverageStockQuantity = decimal.Zero
	s.StockHealthPercentage = decimal.Zero
	if s.ProductsWithStock > 0 {
		s.AverageStockQuantity = decimal.NewFromInt(int64(inStockQty)).
			Div(decimal.NewFromInt(int64(s.ProductsWithStock))).Round(2)
	}
	if s.TotalProducts > 0 {
		s.StockHealthPercentage = decimal.NewFromInt(int64(s.ProductsWithStock * 100)).
			Div(decimal.NewFromInt(int64(s.TotalProducts))).Round(2)
	}

	report.Alerts = StockAlerts{
		OutOfStock:    s.ProductsOutOfStock,
		CriticalStock: s.ProductsCritical,
		LowStock:      s.ProductsLowStock,
	}
	return report
}

// StockHealthService serves stock health reports to admins.
type StockHealthService struct {
	store repositories.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewStockHealthService creates a new StockHealthService.
func NewStockHealthService(store repositories.Store, log zerolog.Logger) *StockHealthService {
	return &StockHealthService{
		store: store,
		log:   log.With().Str("component", "stock_health").Logger(),
		now:   time.Now,
	}
}

// Report builds a stock health report, narrowed by filter when it is set.
func (s *StockHealthService) Report(ctx context.Context, p Principal, filter StockHealthFilter) (*StockHealthReport, error) {
	if err := requireAdmin(p, "view stock health"); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	products, err := s.store.Products().ListAll(ctx)
	if err != nil {
		return nil, translate(s.log, "load stock health", err)
	}
	report := BuildStockHealthReport(products, s.now())
	for _, b := range report.Buckets {
		metrics.StockBucketProducts.WithLabelValues(string(b.Category)).Set(float64(b.Count))
	}

	if filter.IsZero() {
		return report, nil
	}
	return FilterStockHealthReport(report, filter)
}
