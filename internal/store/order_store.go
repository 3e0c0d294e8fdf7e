package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/affilinoanvesh/customer-insights/internal/models"
)

// OrderStore persists storefront orders.
type OrderStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(db *gorm.DB, logger *zap.Logger) *OrderStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderStore{db: db, logger: logger.Named("order_store")}
}

// Upsert writes the order row, creating it on first sight.
func (s *OrderStore) Upsert(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		return fmt.Errorf("order id is required")
	}
	if err := s.db.WithContext(ctx).Save(order).Error; err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", order.ID, err)
	}
	return nil
}

// ListBetween returns orders inside the optional date window: inclusive
// of the start day, exclusive of the day after the end day, so a whole
// calendar day is always in or out. Undated orders are only returned
// when no window is given. Results are ordered by date then id so the
// snapshot is identical run to run.
func (s *OrderStore) ListBetween(ctx context.Context, start, end *time.Time) ([]models.Order, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if start != nil {
		query = query.Where("date_created >= ?", *start)
	}
	if end != nil {
		query = query.Where("date_created < ?", end.AddDate(0, 0, 1))
	}

	var orders []models.Order
	if err := query.Order("date_created, id").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	s.logger.Debug("orders listed", zap.Int("count", len(orders)))
	return orders, nil
}

// CustomerIDs returns the distinct customer ids present in the orders
// table, ordered for stable iteration. Orders without a customer are
// skipped.
func (s *OrderStore) CustomerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("customer_id <> ''").
		Distinct("customer_id").
		Order("customer_id").
		Pluck("customer_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list order customer ids: %w", err)
	}
	return ids, nil
}
