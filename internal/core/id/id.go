// Package id provides identifier generation for all platform entities.
// Server-assigned ids are UUIDv7 strings, so lexical order follows creation time.
// Records created while offline get a temporary id until the server assigns one.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// TempPrefix marks identifiers minted locally for optimistic records.
const TempPrefix = "local-"

// New generates a new UUIDv7 (time-ordered UUID) string.
func New() string {
	v, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New().String()
	}
	return v.String()
}

// NewTemp generates a temporary id for a record that exists only locally.
func NewTemp() string {
	return TempPrefix + New()
}

// IsTemp reports whether the id was minted locally and is not yet confirmed.
func IsTemp(s string) bool {
	return strings.HasPrefix(s, TempPrefix)
}

// Validate checks that s is a well-formed server id.
func Validate(s string) error {
	_, err := uuid.Parse(s)
	return err
}
