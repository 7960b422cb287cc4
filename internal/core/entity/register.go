
package entity

import (
	"time"

	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// RecordType defines movement direction for accumulation registers.
type RecordType string

const (
	// RecordTypeReceipt increases balance
	RecordTypeReceipt RecordType = "receipt"
	// RecordTypeExpense decreases balance
	RecordTypeExpense RecordType = "expense"
)

// Custody tells who physically holds the goods of a movement.
type Custody string

const (
	CustodyOwn     Custody = "own"
	CustodyPartner Custody = "partner"
)

// MovementBase contains common fields for all register movements.
// Movements are append-only: reversal writes the opposite movement.
type MovementBase struct {
	// LineID is unique identifier for this movement line (UUIDv7)
	LineID id.ID `db:"line_id" json:"lineId"`

	// CompanyID owns the movement
	CompanyID id.ID `db:"company_id" json:"companyId"`

	// RecorderID is the document or event that created this movement
	RecorderID id.ID `db:"recorder_id" json:"recorderId"`

	// RecorderType is the business event (e.g. "sale", "purchase")
	RecorderType string `db:"recorder_type" json:"recorderType"`

	// Period is the business date for the movement
	Period time.Time `db:"period" json:"period"`

	// RecordType: receipt or expense
	RecordType RecordType `db:"record_type" json:"recordType"`

	// CreatedAt is when the movement was recorded
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewMovementBase creates a new movement base with generated LineID.
func NewMovementBase(companyID, recorderID id.ID, recorderType string, period time.Time, recordType RecordType) MovementBase {
	return MovementBase{
		LineID:       id.New(),
		CompanyID:    companyID,
		RecorderID:   recorderID,
		RecorderType: recorderType,
		Period:       period,
		RecordType:   recordType,
		CreatedAt:    time.Now().UTC(),
	}
}

// StockMovement represents a movement in the physical stock register.
type StockMovement struct {
	MovementBase

	// Dimensions
	Location
	Custody   Custody `db:"custody" json:"custody"`
	PartnerID id.ID   `db:"partner_id" json:"partnerId,omitempty"`
	ProductID id.ID   `db:"product_id" json:"productId"`

	// Resources
	Quantity types.Quantity `db:"quantity" json:"quantity"`
}

// NewStockMovement creates a new stock movement held in own custody.
func NewStockMovement(
	companyID, recorderID id.ID,
	recorderType string,
	period time.Time,
	recordType RecordType,
	loc Location,
	productID id.ID,
	quantity types.Quantity,
) StockMovement {
	return StockMovement{
		MovementBase: NewMovementBase(companyID, recorderID, recorderType, period, recordType),
		Location:     loc,
		Custody:      CustodyOwn,
		ProductID:    productID,
		Quantity:     quantity,
	}
}

// SignedQuantity returns quantity with sign based on record type.
// Receipt = positive, Expense = negative.
func (m *StockMovement) SignedQuantity() types.Quantity {
	if m.RecordType == RecordTypeExpense {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// StockBalance is the aggregated quantity per register dimensions.
type StockBalance struct {
	Location
	Custody   Custody        `db:"custody" json:"custody"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
}
