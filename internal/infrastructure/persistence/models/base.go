package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/shared"
)

// BaseModel carries the id and timestamps of a ledger row. Timestamps come
// from the domain clock, never from GORM, so created_at always matches the
// time the service observed and stale-pending cutoffs stay consistent.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

// FromDomainBaseEntity copies e into the model. A zero UpdatedAt is filled
// from CreatedAt.
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = e.CreatedAt
	}
}
