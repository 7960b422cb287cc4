// Package entity holds the shapes shared by source documents and registers.
package entity

import (
	"context"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
)

// Validatable is implemented by records that check their own invariants
// without touching storage.
type Validatable interface {
	Validate(ctx context.Context) error
}

// Document is the header of an invoice, bill or write-off. Documents are
// authored elsewhere; the posting core only reads them.
type Document struct {
	ID        id.ID     `db:"id" json:"id"`
	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`

	CompanyID id.ID     `db:"company_id" json:"companyId"`
	Number    string    `db:"number" json:"number"`
	Date      time.Time `db:"date" json:"date"`

	// Location is where the goods of the document are kept.
	Location

	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument returns a header dated now for companyID.
func NewDocument(companyID id.ID) Document {
	now := time.Now().UTC()
	return Document{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		CompanyID: companyID,
		Date:      now,
	}
}

// Validate implements Validatable.
func (d *Document) Validate(ctx context.Context) error {
	if id.IsNil(d.ID) {
		return apperror.NewValidation("document id is required").
			WithDetail("field", "id")
	}
	if id.IsNil(d.CompanyID) {
		return apperror.NewValidation("company is required").
			WithDetail("field", "companyId")
	}
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// BelongsTo reports whether the document is owned by companyID.
func (d *Document) BelongsTo(companyID id.ID) bool {
	return d.CompanyID == companyID
}
