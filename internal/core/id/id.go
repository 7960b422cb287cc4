// Package id generates and parses the UUIDv7 keys used for companies,
// documents, layers and journal entries.
package id

import (
	"github.com/google/uuid"
)

// ID is a UUID.
type ID = uuid.UUID

// New returns a time-ordered UUIDv7, so keys of layers and entries created
// later sort after earlier ones.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse parses s.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// ParseNonNil parses s and rejects the zero UUID.
func ParseNonNil(s string) (ID, bool) {
	v, err := uuid.Parse(s)
	if err != nil || v == uuid.Nil {
		return uuid.Nil, false
	}
	return v, true
}

// MustParse panics on malformed input. Tests and constants only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero UUID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// NullIfNil maps the zero UUID to a SQL NULL.
func NullIfNil(v ID) any {
	if IsNil(v) {
		return nil
	}
	return v
}
