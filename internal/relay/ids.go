package relay

import "github.com/google/uuid"

// IDGenerator assigns participant ids.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator issues time-ordered UUIDv7 ids, so journals sort by join
// order when read by view id.
type UUIDGenerator struct{}

// Generate returns a new id.
func (UUIDGenerator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
