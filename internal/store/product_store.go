package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/affilinoanvesh/customer-insights/internal/models"
)

// ProductStore persists the product id to display name mapping.
type ProductStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewProductStore creates a new ProductStore.
func NewProductStore(db *gorm.DB, logger *zap.Logger) *ProductStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductStore{db: db, logger: logger.Named("product_store")}
}

// Upsert writes the product row.
func (s *ProductStore) Upsert(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	if err := s.db.WithContext(ctx).Save(product).Error; err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", product.ID, err)
	}
	return nil
}

// List returns every product ordered by id.
func (s *ProductStore) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Order("id").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}
