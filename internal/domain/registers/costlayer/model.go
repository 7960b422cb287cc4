// Package costlayer implements the cost layer store and the FIFO
// consumption engine. A layer is a receipt of goods at a unit cost;
// consumption walks layers oldest first and decrements them.
package costlayer

import (
	"context"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// SourceType tells which business event created a layer.
type SourceType string

const (
	SourcePurchase SourceType = "purchase"
	SourceReturnIn SourceType = "return_in"
	SourceOpening  SourceType = "opening"
)

// Scope is the set of layers a consumption may draw from.
type Scope struct {
	CompanyID id.ID
	ProductID id.ID
	entity.Location
}

// Validate checks that company and product are present.
func (s Scope) Validate() error {
	if id.IsNil(s.CompanyID) {
		return apperror.NewValidation("company is required").WithDetail("field", "companyId")
	}
	if id.IsNil(s.ProductID) {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	return nil
}

// Key identifies the scope for locking.
func (s Scope) Key() string {
	return s.CompanyID.String() + "|" + s.ProductID.String() + "|" + s.Location.Key()
}

// Layer is one receipt of inventory at a known unit cost.
type Layer struct {
	ID        id.ID `db:"id" json:"id"`
	CompanyID id.ID `db:"company_id" json:"companyId"`
	ProductID id.ID `db:"product_id" json:"productId"`
	entity.Location

	SourceType SourceType `db:"source_type" json:"sourceType"`
	SourceID   id.ID      `db:"source_id" json:"sourceId"`

	ReceivedQty  types.Quantity `db:"received_qty" json:"receivedQty"`
	RemainingQty types.Quantity `db:"remaining_qty" json:"remainingQty"`
	UnitCost     types.Money    `db:"unit_cost" json:"unitCost"`

	// ReceivedAt orders layers for FIFO; Sequence breaks ties.
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`
	Sequence   int64     `db:"sequence" json:"sequence"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Scope returns the consumption scope the layer belongs to.
func (l *Layer) Scope() Scope {
	return Scope{CompanyID: l.CompanyID, ProductID: l.ProductID, Location: l.Location}
}

// Validate checks layer invariants.
func (l *Layer) Validate(ctx context.Context) error {
	if err := l.Scope().Validate(); err != nil {
		return err
	}
	if !l.ReceivedQty.IsPositive() {
		return apperror.NewValidation("received quantity must be positive").WithDetail("field", "receivedQty")
	}
	if l.RemainingQty < 0 || l.RemainingQty > l.ReceivedQty {
		return apperror.NewValidation("remaining quantity must be within [0, received]").
			WithDetail("remaining", l.RemainingQty.String()).
			WithDetail("received", l.ReceivedQty.String())
	}
	if l.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative").WithDetail("field", "unitCost")
	}
	if l.ReceivedAt.IsZero() {
		return apperror.NewValidation("received_at is required").WithDetail("field", "receivedAt")
	}
	return nil
}

// ConsumptionDetail is the portion taken from one layer.
type ConsumptionDetail struct {
	LayerID  id.ID          `db:"layer_id" json:"layerId"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	UnitCost types.Money    `db:"unit_cost" json:"unitCost"`
	Cost     types.Money    `db:"cost" json:"cost"`
}

// Consumption is the result of one FIFO walk.
type Consumption struct {
	Scope     Scope               `json:"-"`
	Quantity  types.Quantity      `json:"quantity"`
	TotalCost types.Money         `json:"totalCost"`
	Details   []ConsumptionDetail `json:"details"`
}

// COGSTransaction records the cost recognized for a business event.
// Rows are immutable; a reversal is a new row pointing at the original.
type COGSTransaction struct {
	ID         id.ID  `db:"id" json:"id"`
	CompanyID  id.ID  `db:"company_id" json:"companyId"`
	SourceType string `db:"source_type" json:"sourceType"`
	SourceID   id.ID  `db:"source_id" json:"sourceId"`
	ProductID  id.ID  `db:"product_id" json:"productId"`
	entity.Location

	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	TotalCost types.Money    `db:"total_cost" json:"totalCost"`

	// ReversalOf links a reversing row to the row it cancels.
	ReversalOf id.ID `db:"reversal_of" json:"reversalOf,omitempty"`

	Details []ConsumptionDetail `db:"-" json:"details"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
}

// ValuationFilter narrows a valuation query.
type ValuationFilter struct {
	CompanyID  id.ID
	ProductIDs []id.ID
}

// ValuationRow is the remaining quantity and cost of a product at a location.
type ValuationRow struct {
	ProductID id.ID `db:"product_id" json:"productId"`
	entity.Location
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Value    types.Money    `db:"value" json:"value"`
}
