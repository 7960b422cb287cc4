package ledger

import (
	"context"
	"time"

	"costledger/internal/core/id"
)

// Repository persists journal entries.
type Repository interface {
	// FindActiveID returns the id of the non-deleted entry holding the triple,
	// or the nil id when there is none.
	FindActiveID(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID) (id.ID, error)

	// GetActive returns the non-deleted entry of the triple with lines (NOT_FOUND otherwise).
	GetActive(ctx context.Context, companyID id.ID, refType ReferenceType, refID id.ID) (*Entry, error)

	// GetByID returns an entry with lines.
	GetByID(ctx context.Context, companyID, entryID id.ID) (*Entry, error)

	// Insert stores the entry and its lines. A concurrent insert of the same
	// active triple fails with DUPLICATE_POSTING.
	Insert(ctx context.Context, entry *Entry) error

	// SoftDelete marks an active entry deleted.
	SoftDelete(ctx context.Context, companyID, entryID id.ID, reason string, at time.Time) error

	// ListActiveStandard returns non-deleted standard entries with lines, for drift detection.
	ListActiveStandard(ctx context.Context, companyID id.ID) ([]Entry, error)

	// ListAdjustments returns non-deleted balancing adjustments of an entry.
	ListAdjustments(ctx context.Context, companyID, entryID id.ID) ([]Entry, error)
}
