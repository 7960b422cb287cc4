// Package write_off provides the inventory write-off document.
package write_off

import (
	"context"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// Status of a write-off.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// WriteOff removes damaged or lost goods from inventory.
type WriteOff struct {
	entity.Document

	Status Status `db:"status" json:"status"`
	Reason string `db:"reason" json:"reason,omitempty"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one product written off.
type Line struct {
	LineID    id.ID          `db:"line_id" json:"lineId"`
	LineNo    int            `db:"line_no" json:"lineNo"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
}

// New creates an approved write-off.
func New(companyID id.ID, reason string) *WriteOff {
	return &WriteOff{
		Document: entity.NewDocument(companyID),
		Status:   StatusApproved,
		Reason:   reason,
		Lines:    make([]Line, 0),
	}
}

// AddLine adds a product to write off.
func (w *WriteOff) AddLine(productID id.ID, quantity types.Quantity) {
	w.Lines = append(w.Lines, Line{
		LineID:    id.New(),
		LineNo:    len(w.Lines) + 1,
		ProductID: productID,
		Quantity:  quantity,
	})
}

// Validate implements entity.Validatable.
func (w *WriteOff) Validate(ctx context.Context) error {
	if err := w.Document.Validate(ctx); err != nil {
		return err
	}
	if len(w.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for _, l := range w.Lines {
		if id.IsNil(l.ProductID) {
			return apperror.NewValidation("product is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", l.LineNo)
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", l.LineNo)
		}
	}
	return nil
}

// CanPost requires an approved write-off.
func (w *WriteOff) CanPost(ctx context.Context) error {
	if w.Status != StatusApproved {
		return apperror.NewInvalidState("write_off", "write-off is not approved").
			WithDetail("write_off_id", w.ID.String()).
			WithDetail("status", string(w.Status))
	}
	return w.Validate(ctx)
}

// Repository reads write-offs authored elsewhere.
type Repository interface {
	GetByID(ctx context.Context, companyID, writeOffID id.ID) (*WriteOff, error)
}
