package costlayer

import (
	"context"
	"time"

	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// Repository persists layers and COGS transactions.
// All methods participate in the posting unit carried by ctx.
type Repository interface {
	// LockScope serializes consumers of one scope until the unit ends.
	LockScope(ctx context.Context, scope Scope) error

	// ListEligible returns layers of scope with remaining > 0 received at or
	// before asOf, oldest first, locked for update.
	ListEligible(ctx context.Context, scope Scope, asOf time.Time) ([]Layer, error)

	// Insert stores a new layer and assigns its Sequence.
	Insert(ctx context.Context, layer *Layer) error

	// Decrement subtracts qty from a layer if its remaining quantity still
	// equals expected. Returns CONCURRENT_MODIFICATION otherwise.
	Decrement(ctx context.Context, companyID, layerID id.ID, expected, qty types.Quantity) error

	// Increment adds qty back to a layer. Returns INVALID_STATE when the
	// layer would exceed its received quantity and NOT_FOUND for unknown layers.
	Increment(ctx context.Context, companyID, layerID id.ID, qty types.Quantity) error

	// GetByIDs loads layers of a company.
	GetByIDs(ctx context.Context, companyID id.ID, ids []id.ID) ([]Layer, error)

	// ListBySource returns the layers a business event created.
	ListBySource(ctx context.Context, companyID id.ID, sourceType SourceType, sourceID id.ID) ([]Layer, error)

	// SumAvailable returns the remaining quantity eligible at asOf.
	SumAvailable(ctx context.Context, scope Scope, asOf time.Time) (types.Quantity, error)

	// InsertCOGS stores a COGS transaction with its details.
	InsertCOGS(ctx context.Context, cogs *COGSTransaction) error

	// ListActiveCOGS returns non-reversed COGS transactions of a source with details.
	ListActiveCOGS(ctx context.Context, companyID id.ID, sourceType string, sourceID id.ID) ([]COGSTransaction, error)

	// Valuation sums remaining quantity and value per product and location.
	Valuation(ctx context.Context, filter ValuationFilter) ([]ValuationRow, error)
}
