package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

var seedCatalogue = []models.Product{
	{Name: "Laptop", Description: "High performance laptop", Price: decimal.RequireFromString("1200.00"), StockQuantity: 10},
	{Name: "Keyboard", Description: "Mechanical keyboard", Price: decimal.RequireFromString("75.00"), StockQuantity: 25},
	{Name: "Mouse", Description: "Ergonomic wireless mouse", Price: decimal.RequireFromString("25.00"), StockQuantity: 50},
	{Name: "Monitor", Description: "27 inch IPS monitor", Price: decimal.RequireFromString("329.99"), StockQuantity: 4},
	{Name: "USB-C Hub", Description: "7-in-1 USB-C hub", Price: decimal.RequireFromString("39.90"), StockQuantity: 120},
}

// SeedProducts fills an empty catalogue with sample products.
func SeedProducts(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		log.Debug().Int64("products", count).Msg("catalogue not empty, skipping seed")
		return nil
	}

	repo := repositories.NewGORMProductRepository(db)
	for i := range seedCatalogue {
		product := seedCatalogue[i]
		if err := repo.Create(ctx, &product); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", product.Name, err)
		}
		log.Info().Str("product_id", product.ID).Str("name", product.Name).Msg("seeded product")
	}
	return nil
}
