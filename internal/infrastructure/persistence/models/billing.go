package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for billing.Payment.
// provider_reference is nullable so the unique index tolerates rows that
// were never attached to a session.
type PaymentModel struct {
	BaseModel
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index:idx_payments_user_created,priority:1"`
	TierName          string          `gorm:"type:varchar(50);not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	CreditsAdded      int64           `gorm:"not null"`
	Status            string          `gorm:"type:varchar(20);not null;index:idx_payments_status_created,priority:1"`
	ProviderReference *string         `gorm:"type:varchar(255);uniqueIndex"`
	SettledAt         *time.Time
}

// TableName returns the table name for PaymentModel
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	p := &billing.Payment{
		BaseEntity:   m.BaseModel.ToDomain(),
		UserID:       m.UserID,
		TierName:     m.TierName,
		Amount:       m.Amount,
		Currency:     m.Currency,
		CreditsAdded: m.CreditsAdded,
		Status:       billing.PaymentStatus(m.Status),
		SettledAt:    m.SettledAt,
	}
	if m.ProviderReference != nil {
		p.ProviderReference = *m.ProviderReference
	}
	return p
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.UserID = p.UserID
	m.TierName = p.TierName
	m.Amount = p.Amount
	m.Currency = p.Currency
	m.CreditsAdded = p.CreditsAdded
	m.Status = string(p.Status)
	m.SettledAt = p.SettledAt
	m.ProviderReference = nil
	if p.ProviderReference != "" {
		ref := p.ProviderReference
		m.ProviderReference = &ref
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// UsageRecordModel is one metered usage sample
type UsageRecordModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_usage_records_user_recorded,priority:1"`
	Quantity   int64     `gorm:"not null"`
	RecordedAt time.Time `gorm:"not null;index:idx_usage_records_user_recorded,priority:2"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for UsageRecordModel
func (UsageRecordModel) TableName() string {
	return "usage_records"
}

// ToDomain converts the persistence model to a domain UsageRecord
func (m *UsageRecordModel) ToDomain() *billing.UsageRecord {
	return &billing.UsageRecord{
		ID:         m.ID,
		UserID:     m.UserID,
		Quantity:   m.Quantity,
		RecordedAt: m.RecordedAt,
	}
}

// UsageRecordModelFromDomain creates a persistence model from a domain UsageRecord
func UsageRecordModelFromDomain(r *billing.UsageRecord) *UsageRecordModel {
	return &UsageRecordModel{
		ID:         r.ID,
		UserID:     r.UserID,
		Quantity:   r.Quantity,
		RecordedAt: r.RecordedAt,
	}
}

// CreditBalanceModel holds the running credit total per user
type CreditBalanceModel struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Credits   int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for CreditBalanceModel
func (CreditBalanceModel) TableName() string {
	return "credit_balances"
}

// ToDomain converts the persistence model to a domain CreditBalance
func (m *CreditBalanceModel) ToDomain() *billing.CreditBalance {
	return &billing.CreditBalance{
		UserID:    m.UserID,
		Credits:   m.Credits,
		UpdatedAt: m.UpdatedAt,
	}
}

// CreditGrantModel records that a payment's credits were applied. The
// primary key on payment_id makes a grant happen at most once.
type CreditGrantModel struct {
	PaymentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Credits   int64     `gorm:"not null"`
	GrantedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for CreditGrantModel
func (CreditGrantModel) TableName() string {
	return "credit_grants"
}
