// Package numerator provides domain contracts for journal auto-numbering.
// Implementations live in infrastructure layer.
package numerator

import (
	"context"
	"time"

	"costledger/internal/core/id"
)

// Generator generates sequential numbers per company.
type Generator interface {
	// GetNextNumber generates the next number.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., JE-2026-00001)
	//
	// Called inside the posting unit so a rolled back posting
	// gives its number back (strict strategy).
	GetNextNumber(ctx context.Context, companyID id.ID, cfg Config, opts *Options, period time.Time) (string, error)
}
