package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditBalanceRepository implements billing.CreditBalanceRepository.
// Every grant is recorded in credit_grants keyed by payment, in the same
// transaction that bumps the balance.
type CreditBalanceRepository struct {
	db *gorm.DB
}

// NewCreditBalanceRepository creates a new CreditBalanceRepository
func NewCreditBalanceRepository(db *gorm.DB) *CreditBalanceRepository {
	return &CreditBalanceRepository{db: db}
}

// Grant adds credits for paymentID at most once
func (r *CreditBalanceRepository) Grant(ctx context.Context, userID, paymentID uuid.UUID, credits int64, at time.Time) (bool, error) {
	if credits < 0 {
		return false, fmt.Errorf("credit grant cannot be negative: %d", credits)
	}

	granted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grant := &models.CreditGrantModel{
			PaymentID: paymentID,
			UserID:    userID,
			Credits:   credits,
			GrantedAt: at,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(grant)
		if result.Error != nil {
			return fmt.Errorf("failed to record credit grant: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		balance := &models.CreditBalanceModel{UserID: userID, Credits: credits, UpdatedAt: at}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"credits":    gorm.Expr("credit_balances.credits + EXCLUDED.credits"),
				"updated_at": at,
			}),
		}).Create(balance).Error; err != nil {
			return fmt.Errorf("failed to update credit balance: %w", err)
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

// Get returns the user's balance, zero if none was ever granted
func (r *CreditBalanceRepository) Get(ctx context.Context, userID uuid.UUID) (*billing.CreditBalance, error) {
	var model models.CreditBalanceModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &billing.CreditBalance{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to load credit balance: %w", err)
	}
	return model.ToDomain(), nil
}

var _ billing.CreditBalanceRepository = (*CreditBalanceRepository)(nil)
