package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEntity(t *testing.T) {
	e := NewBaseEntity()
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)
}

func TestTouchAdvancesUpdatedAtOnly(t *testing.T) {
	e := NewBaseEntity()
	created := e.CreatedAt

	later := e.UpdatedAt.Add(time.Hour)
	e.Touch(later)

	assert.Equal(t, created, e.CreatedAt)
	assert.Equal(t, later, e.UpdatedAt)
}

func TestNewBaseAggregateRoot(t *testing.T) {
	a := NewBaseAggregateRoot()
	assert.Equal(t, 1, a.Version)

	a.IncrementVersion()
	assert.Equal(t, 2, a.Version)
}
