package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/meterpay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// UsageRecordRepository implements billing.UsageRecordRepository. The usage
// meter writes samples; billing only ever sums them.
type UsageRecordRepository struct {
	db *gorm.DB
}

// NewUsageRecordRepository creates a new usage record repository
func NewUsageRecordRepository(db *gorm.DB) *UsageRecordRepository {
	return &UsageRecordRepository{db: db}
}

// Save persists a new usage record
func (r *UsageRecordRepository) Save(ctx context.Context, record *billing.UsageRecord) error {
	if err := r.db.WithContext(ctx).Create(models.UsageRecordModelFromDomain(record)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists.WithCause(err)
		}
		return err
	}
	return nil
}

// SaveBatch persists multiple usage records
func (r *UsageRecordRepository) SaveBatch(ctx context.Context, records []*billing.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]*models.UsageRecordModel, len(records))
	for i, record := range records {
		rows[i] = models.UsageRecordModelFromDomain(record)
	}

	return r.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

// GetUsage sums the user's usage recorded within period
func (r *UsageRecordRepository) GetUsage(ctx context.Context, userID uuid.UUID, period billing.BillingPeriod) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.UsageRecordModel{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("user_id = ? AND recorded_at >= ? AND recorded_at < ?", userID, period.Start, period.End).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}

var _ billing.UsageRecordRepository = (*UsageRecordRepository)(nil)
