package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/meterpay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements billing.PaymentLedger using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Put inserts a new payment row
func (r *GormPaymentRepository) Put(ctx context.Context, payment *billing.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists.WithCause(err)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, paymentID uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).Where("id = ?", paymentID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByProviderReference finds a payment by its checkout session id
func (r *GormPaymentRepository) FindByProviderReference(ctx context.Context, ref string) (*billing.Payment, error) {
	if ref == "" {
		return nil, shared.ErrNotFound
	}
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).Where("provider_reference = ?", ref).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateStatusIf is a single conditional UPDATE; the status predicate makes
// concurrent callers race on the row lock and only one of them matches.
func (r *GormPaymentRepository) UpdateStatusIf(ctx context.Context, paymentID uuid.UUID, expected, next billing.PaymentStatus, at time.Time) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, shared.ErrInvalidState.WithCause(
			fmt.Errorf("payment cannot move from %s to %s", expected, next))
	}

	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND status = ?", paymentID, string(expected)).
		Updates(map[string]any{
			"status":     string(next),
			"settled_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListByUser returns one page of the user's payments, newest first
func (r *GormPaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]billing.Payment, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	return toDomainPayments(rows), total, nil
}

// ListPendingBefore returns pending payments created before cutoff, oldest first
func (r *GormPaymentRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]billing.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(billing.PaymentStatusPending), cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return toDomainPayments(rows), nil
}

func toDomainPayments(rows []models.PaymentModel) []billing.Payment {
	out := make([]billing.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out
}

var _ billing.PaymentLedger = (*GormPaymentRepository)(nil)
