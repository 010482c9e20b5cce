package shared

// BaseAggregateRoot extends BaseEntity with a version counter for
// optimistic locking
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// IncrementVersion increments the version number before a persisted update
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// NewBaseAggregateRoot creates a new base aggregate root at version 1
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}
