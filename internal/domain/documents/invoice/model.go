// Package invoice provides the sales invoice as read by the posting core.
package invoice

import (
	"context"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// Status of an invoice in its issuing workflow.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusIssued        Status = "issued"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusVoid          Status = "void"
)

// Invoice represents a sales invoice.
type Invoice struct {
	entity.Document

	CustomerID id.ID  `db:"customer_id" json:"customerId"`
	Status     Status `db:"status" json:"status"`

	entity.CurrencyAware

	// Totals in the invoice currency (calculated from lines)
	Subtotal  types.Money `db:"subtotal" json:"subtotal"`
	TaxAmount types.Money `db:"tax_amount" json:"taxAmount"`
	Total     types.Money `db:"total" json:"total"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one invoiced item.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID   id.ID          `db:"product_id" json:"productId"`
	Description string         `db:"description" json:"description,omitempty"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	TaxRate     types.Money    `db:"tax_rate" json:"taxRate"`
	TaxAmount   types.Money    `db:"tax_amount" json:"taxAmount"`
	Amount      types.Money    `db:"amount" json:"amount"`

	// TracksInventory is false for services; only tracked lines consume cost layers.
	TracksInventory bool `db:"tracks_inventory" json:"tracksInventory"`
}

// New creates an issued invoice in the base currency.
func New(companyID, customerID id.ID) *Invoice {
	return &Invoice{
		Document:   entity.NewDocument(companyID),
		CustomerID: customerID,
		Status:     StatusIssued,
		CurrencyAware: entity.CurrencyAware{
			CurrencyCode: "USD",
			ExchangeRate: types.MustMoney("1"),
		},
		Lines: make([]Line, 0),
	}
}

// AddLine adds an item and recalculates totals. taxRate is a fraction (0.15 = 15%).
func (inv *Invoice) AddLine(productID id.ID, quantity types.Quantity, unitPrice, taxRate types.Money, tracksInventory bool) {
	amount := types.RoundMinor(quantity.MulMoney(unitPrice), types.ReportingDigits)
	tax := types.RoundMinor(amount.Mul(taxRate), types.ReportingDigits)

	inv.Lines = append(inv.Lines, Line{
		LineID:          id.New(),
		LineNo:          len(inv.Lines) + 1,
		ProductID:       productID,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		TaxRate:         taxRate,
		TaxAmount:       tax,
		Amount:          amount,
		TracksInventory: tracksInventory,
	})
	inv.recalculateTotals()
}

func (inv *Invoice) recalculateTotals() {
	inv.Subtotal = types.Zero()
	inv.TaxAmount = types.Zero()
	for _, l := range inv.Lines {
		inv.Subtotal = inv.Subtotal.Add(l.Amount)
		inv.TaxAmount = inv.TaxAmount.Add(l.TaxAmount)
	}
	inv.Total = inv.Subtotal.Add(inv.TaxAmount)
}

// InventoryLines returns lines that move goods.
func (inv *Invoice) InventoryLines() []Line {
	out := make([]Line, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		if l.TracksInventory {
			out = append(out, l)
		}
	}
	return out
}

// PricedShare returns the net amount and tax, in the invoice currency, of
// qty units of a product taken from its lines in line order after the first
// skip units. A line taken whole contributes its stored amounts.
func (inv *Invoice) PricedShare(productID id.ID, skip, qty types.Quantity) (net, tax types.Money) {
	net, tax = types.Zero(), types.Zero()
	for _, l := range inv.InventoryLines() {
		if !qty.IsPositive() {
			break
		}
		if l.ProductID != productID {
			continue
		}
		if skip >= l.Quantity {
			skip -= l.Quantity
			continue
		}
		take := types.MinQuantity(l.Quantity-skip, qty)
		if skip.IsZero() && take == l.Quantity {
			net = net.Add(l.Amount)
			tax = tax.Add(l.TaxAmount)
		} else {
			amount := types.RoundMinor(take.MulMoney(l.UnitPrice), types.ReportingDigits)
			net = net.Add(amount)
			tax = tax.Add(types.RoundMinor(amount.Mul(l.TaxRate), types.ReportingDigits))
		}
		skip = 0
		qty -= take
	}
	return net, tax
}

// BaseAmounts returns subtotal, tax and total converted to the base
// currency and rounded. Total is derived so the three always balance.
func (inv *Invoice) BaseAmounts() (subtotal, tax, total types.Money) {
	subtotal = types.RoundMinor(inv.ToBase(inv.Subtotal), types.ReportingDigits)
	tax = types.RoundMinor(inv.ToBase(inv.TaxAmount), types.ReportingDigits)
	return subtotal, tax, subtotal.Add(tax)
}

// Validate implements entity.Validatable.
func (inv *Invoice) Validate(ctx context.Context) error {
	if err := inv.Document.Validate(ctx); err != nil {
		return err
	}
	if err := inv.ValidateCurrency(ctx); err != nil {
		return err
	}
	if len(inv.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for _, l := range inv.Lines {
		if l.TracksInventory && id.IsNil(l.ProductID) {
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

// CanPost checks the invoice is in a state that may hit the ledger.
func (inv *Invoice) CanPost(ctx context.Context) error {
	switch inv.Status {
	case StatusIssued, StatusPartiallyPaid, StatusPaid:
		return inv.Validate(ctx)
	default:
		return apperror.NewInvalidState("invoice", "invoice is not issued").
			WithDetail("invoice_id", inv.ID.String()).
			WithDetail("status", string(inv.Status))
	}
}

// Repository reads invoices authored elsewhere.
type Repository interface {
	GetByID(ctx context.Context, companyID, invoiceID id.ID) (*Invoice, error)

	// Lock serializes posting units of one invoice until the unit ends.
	// It must run inside a unit.
	Lock(ctx context.Context, companyID, invoiceID id.ID) error
}
