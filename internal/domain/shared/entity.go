package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries identity and audit timestamps for domain entities.
// Aggregate roots embed it through BaseAggregateRoot; standalone entities
// such as payment records embed it directly.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity creates an entity with a fresh id, stamped now
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch advances the update timestamp after a state change
func (e *BaseEntity) Touch(at time.Time) {
	e.UpdatedAt = at
}
