// Package bill provides the vendor bill as read by the posting core.
package bill

import (
	"context"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// Status of a bill.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReceived Status = "received"
	StatusPaid     Status = "paid"
	StatusVoid     Status = "void"
)

// Bill represents a vendor bill.
type Bill struct {
	entity.Document

	VendorID id.ID  `db:"vendor_id" json:"vendorId"`
	Status   Status `db:"status" json:"status"`

	entity.CurrencyAware

	Subtotal  types.Money `db:"subtotal" json:"subtotal"`
	TaxAmount types.Money `db:"tax_amount" json:"taxAmount"`
	Total     types.Money `db:"total" json:"total"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is either a stocked product (creates a cost layer) or a direct
// expense against an account.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID        id.ID          `db:"product_id" json:"productId,omitempty"`
	ExpenseAccountID id.ID          `db:"expense_account_id" json:"expenseAccountId,omitempty"`
	Description      string         `db:"description" json:"description,omitempty"`
	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	UnitCost         types.Money    `db:"unit_cost" json:"unitCost"`
	Amount           types.Money    `db:"amount" json:"amount"`
}

// IsInventory reports whether the line receives stock.
func (l *Line) IsInventory() bool {
	return !id.IsNil(l.ProductID)
}

// New creates a received bill in the base currency.
func New(companyID, vendorID id.ID) *Bill {
	return &Bill{
		Document: entity.NewDocument(companyID),
		VendorID: vendorID,
		Status:   StatusReceived,
		CurrencyAware: entity.CurrencyAware{
			CurrencyCode: "USD",
			ExchangeRate: types.MustMoney("1"),
		},
		Lines: make([]Line, 0),
	}
}

// AddItem adds a stocked product line.
func (b *Bill) AddItem(productID id.ID, quantity types.Quantity, unitCost types.Money) {
	b.Lines = append(b.Lines, Line{
		LineID:    id.New(),
		LineNo:    len(b.Lines) + 1,
		ProductID: productID,
		Quantity:  quantity,
		UnitCost:  unitCost,
		Amount:    types.RoundMinor(quantity.MulMoney(unitCost), types.ReportingDigits),
	})
	b.recalculateTotals()
}

// AddExpense adds a non-stock line. A nil account falls back to the purchase expense role.
func (b *Bill) AddExpense(accountID id.ID, description string, amount types.Money) {
	b.Lines = append(b.Lines, Line{
		LineID:           id.New(),
		LineNo:           len(b.Lines) + 1,
		ExpenseAccountID: accountID,
		Description:      description,
		Quantity:         types.Quantity(types.QuantityScale),
		UnitCost:         amount,
		Amount:           types.RoundMinor(amount, types.ReportingDigits),
	})
	b.recalculateTotals()
}

// SetTax sets the tax amount of the bill.
func (b *Bill) SetTax(tax types.Money) {
	b.TaxAmount = types.RoundMinor(tax, types.ReportingDigits)
	b.recalculateTotals()
}

func (b *Bill) recalculateTotals() {
	b.Subtotal = types.Zero()
	for _, l := range b.Lines {
		b.Subtotal = b.Subtotal.Add(l.Amount)
	}
	b.Total = b.Subtotal.Add(b.TaxAmount)
}

// Validate implements entity.Validatable.
func (b *Bill) Validate(ctx context.Context) error {
	if err := b.Document.Validate(ctx); err != nil {
		return err
	}
	if err := b.ValidateCurrency(ctx); err != nil {
		return err
	}
	if len(b.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for _, l := range b.Lines {
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", l.LineNo)
		}
		if l.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", l.LineNo)
		}
	}
	return nil
}

// CanPost checks the bill may be recorded.
func (b *Bill) CanPost(ctx context.Context) error {
	if b.Status != StatusReceived && b.Status != StatusPaid {
		return apperror.NewInvalidState("bill", "bill is not received").
			WithDetail("bill_id", b.ID.String()).
			WithDetail("status", string(b.Status))
	}
	return b.Validate(ctx)
}

// Repository reads bills authored elsewhere.
type Repository interface {
	GetByID(ctx context.Context, companyID, billID id.ID) (*Bill, error)
}
