package types

import "time"

// Entity is the base type for all Tally records. Embed it in domain types to
// carry the creation timestamp. Tally records are append-only, so there is no
// updated-at field anywhere.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
}

// NewEntity creates a new Entity stamped with the current UTC time.
func NewEntity() Entity {
	return NewEntityAt(time.Now().UTC())
}

// NewEntityAt creates a new Entity stamped with the given time.
func NewEntityAt(t time.Time) Entity {
	return Entity{CreatedAt: t.UTC()}
}

// Age returns how long ago the record was created.
func (e Entity) Age() time.Duration {
	return time.Since(e.CreatedAt)
}
