package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/affilinoanvesh/customer-insights/internal/models"
)

// RFMStore persists RFM calculation batches. The engine itself never
// reads these back; reporting serves the latest batch and older batches
// are kept only for audit.
type RFMStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRFMStore creates a new RFMStore.
func NewRFMStore(db *gorm.DB, logger *zap.Logger) *RFMStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RFMStore{db: db, logger: logger.Named("rfm_store")}
}

// SaveBatch writes one calculation run. All records must already share a
// batch id and calculation date.
func (s *RFMStore) SaveBatch(ctx context.Context, records []models.RFMRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to save rfm batch: %w", err)
	}
	s.logger.Debug("rfm batch saved",
		zap.String("batch_id", records[0].BatchID.String()),
		zap.Int("records", len(records)))
	return nil
}

// LatestBatch returns every record of the most recent calculation run,
// ordered by customer id. No batch yet means an empty result, not an
// error.
func (s *RFMStore) LatestBatch(ctx context.Context) ([]models.RFMRecord, error) {
	var newest models.RFMRecord
	err := s.db.WithContext(ctx).Order("calculation_date DESC").First(&newest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return []models.RFMRecord{}, nil
		}
		return nil, fmt.Errorf("failed to find latest rfm batch: %w", err)
	}

	var records []models.RFMRecord
	err = s.db.WithContext(ctx).
		Where("batch_id = ?", newest.BatchID).
		Order("customer_id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rfm batch %s: %w", newest.BatchID, err)
	}
	return records, nil
}
