package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/affilinoanvesh/customer-insights/internal/models"
)

// CustomerStore persists customers and their order-derived aggregates.
type CustomerStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCustomerStore creates a new CustomerStore.
func NewCustomerStore(db *gorm.DB, logger *zap.Logger) *CustomerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerStore{db: db, logger: logger.Named("customer_store")}
}

// Upsert writes the customer row, creating it on first sight.
func (s *CustomerStore) Upsert(ctx context.Context, customer *models.Customer) error {
	if customer.ID == "" {
		return fmt.Errorf("customer id is required")
	}
	if err := s.db.WithContext(ctx).Save(customer).Error; err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", customer.ID, err)
	}
	return nil
}

// GetByID fetches one customer.
func (s *CustomerStore) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("customer %s not found", id)
		}
		return nil, fmt.Errorf("failed to fetch customer %s: %w", id, err)
	}
	return &customer, nil
}

// List returns every customer ordered by id. The stable ordering matters:
// analytics tie-breaking follows input order, so the snapshot must arrive
// the same way every run.
func (s *CustomerStore) List(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := s.db.WithContext(ctx).Order("id").Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

// RefreshAggregates recomputes order_count, total_spent and the order
// date bounds for one customer straight from the orders table. Aggregates
// are never incremented in place; this is the only write path for them.
// Undated orders are excluded so the count stays consistent with the
// date bounds every time-relative rule keys on.
func (s *CustomerStore) RefreshAggregates(ctx context.Context, customerID string) error {
	var agg struct {
		OrderCount int64
		TotalSpent float64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COUNT(*) AS order_count, COALESCE(SUM(total), 0) AS total_spent").
		Where("customer_id = ? AND date_created IS NOT NULL", customerID).
		Scan(&agg).Error
	if err != nil {
		return fmt.Errorf("failed to aggregate orders for customer %s: %w", customerID, err)
	}

	firstOrder, err := s.orderDateBound(ctx, customerID, "date_created ASC")
	if err != nil {
		return err
	}
	lastOrder, err := s.orderDateBound(ctx, customerID, "date_created DESC")
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"order_count":      agg.OrderCount,
		"total_spent":      agg.TotalSpent,
		"first_order_date": firstOrder,
		"last_order_date":  lastOrder,
	}
	if err := s.db.WithContext(ctx).Model(&models.Customer{}).Where("id = ?", customerID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update aggregates for customer %s: %w", customerID, err)
	}

	s.logger.Debug("customer aggregates refreshed",
		zap.String("customer_id", customerID),
		zap.Int64("order_count", agg.OrderCount))
	return nil
}

func (s *CustomerStore) orderDateBound(ctx context.Context, customerID, ordering string) (*time.Time, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND date_created IS NOT NULL", customerID).
		Order(ordering).
		First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch order date bound for customer %s: %w", customerID, err)
	}
	return order.DateCreated, nil
}
