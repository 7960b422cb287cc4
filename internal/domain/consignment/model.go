// Package consignment tracks goods held by an external partner before the
// sale is confirmed. Moving goods to a partner is a custody change only;
// revenue and cost are realized when the partner balance is cleared.
package consignment

import (
	"context"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/costlayer"
)

// Status of a third-party record.
type Status string

const (
	StatusOpen     Status = "open"
	StatusCleared  Status = "cleared"
	StatusReturned Status = "returned"
)

// Record is one product of one source document held by one partner.
type Record struct {
	ID          id.ID `db:"id" json:"id"`
	CompanyID   id.ID `db:"company_id" json:"companyId"`
	PartnerID   id.ID `db:"partner_id" json:"partnerId"`
	ProductID   id.ID `db:"product_id" json:"productId"`
	SourceDocID id.ID `db:"source_doc_id" json:"sourceDocId"`

	// Location the goods left from and return to.
	entity.Location

	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	ClearedQty  types.Quantity `db:"cleared_quantity" json:"clearedQuantity"`
	ReturnedQty types.Quantity `db:"returned_quantity" json:"returnedQuantity"`

	// CostBasis is the FIFO cost of all transferred units; UnitCost is its average.
	UnitCost  types.Money `db:"unit_cost" json:"unitCost"`
	CostBasis types.Money `db:"cost_basis" json:"costBasis"`

	Status Status `db:"status" json:"status"`

	// Allocations are the layer portions of the units still with the partner,
	// oldest first. Clearing takes from the front, returns from the back.
	Allocations []costlayer.ConsumptionDetail `db:"-" json:"allocations"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// WithPartner is the quantity neither cleared nor returned.
func (r *Record) WithPartner() types.Quantity {
	return r.Quantity - r.ClearedQty - r.ReturnedQty
}

// CheckConservation verifies cleared + returned + with partner == quantity
// and that the allocations cover exactly what the partner holds.
func (r *Record) CheckConservation(ctx context.Context) error {
	if r.ClearedQty < 0 || r.ReturnedQty < 0 || r.ClearedQty+r.ReturnedQty > r.Quantity {
		return apperror.NewInvalidState("third_party_inventory", "cleared and returned exceed transferred quantity").
			WithDetail("record_id", r.ID.String()).
			WithDetail("quantity", r.Quantity.String()).
			WithDetail("cleared", r.ClearedQty.String()).
			WithDetail("returned", r.ReturnedQty.String())
	}
	allocated, _ := costlayer.SumDetails(r.Allocations)
	if allocated != r.WithPartner() {
		return apperror.NewInvalidState("third_party_inventory", "allocations do not match quantity with partner").
			WithDetail("record_id", r.ID.String()).
			WithDetail("allocated", allocated.String()).
			WithDetail("with_partner", r.WithPartner().String())
	}
	return nil
}

// refreshStatus derives the status from the quantities. A record becomes
// cleared only when everything was cleared and returned when nothing is
// left with the partner otherwise.
func (r *Record) refreshStatus() {
	switch {
	case r.ClearedQty == r.Quantity:
		r.Status = StatusCleared
	case r.WithPartner().IsZero():
		r.Status = StatusReturned
	default:
		r.Status = StatusOpen
	}
}

// Repository persists third-party records.
type Repository interface {
	// Insert stores a new record with its allocations.
	Insert(ctx context.Context, rec *Record) error

	// ListBySource returns records of a source document locked for update.
	ListBySource(ctx context.Context, companyID, sourceDocID id.ID) ([]Record, error)

	// Update saves quantities, status and allocations if Version still
	// matches, then increments it.
	Update(ctx context.Context, rec *Record) error
}
