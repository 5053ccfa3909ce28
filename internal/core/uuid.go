package core

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUID for execution identifiers.
// Falls back to v4 in the unlikely event the randomness source fails.
func NewUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
