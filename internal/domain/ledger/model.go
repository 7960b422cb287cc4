// Package ledger is the journal governance layer: every journal entry the
// posting core writes passes through it, and it is the only writer of
// journal_entries.
package ledger

import (
	"context"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
)

// ReferenceType tags the business event an entry records.
type ReferenceType string

const (
	RefSale                ReferenceType = "sale"
	RefSaleCOGS            ReferenceType = "sale_cogs"
	RefPurchase            ReferenceType = "purchase"
	RefPayment             ReferenceType = "payment"
	RefWriteOff            ReferenceType = "write_off"
	RefCreditNote          ReferenceType = "credit_note"
	RefDebitNote           ReferenceType = "debit_note"
	RefPartnerClearing     ReferenceType = "partner_clearing"
	RefPartnerClearingCOGS ReferenceType = "partner_clearing_cogs"
	RefBalancingAdjustment ReferenceType = "balancing_adjustment"
)

// prerequisites maps a dependent reference type to the type that must
// already be posted for the same reference id.
var prerequisites = map[ReferenceType]ReferenceType{
	RefSaleCOGS:            RefSale,
	RefPartnerClearingCOGS: RefPartnerClearing,
}

// Prerequisite returns the reference type that must exist before t.
func Prerequisite(t ReferenceType) (ReferenceType, bool) {
	p, ok := prerequisites[t]
	return p, ok
}

// Valid reports whether t is a known reference type.
func (t ReferenceType) Valid() bool {
	switch t {
	case RefSale, RefSaleCOGS, RefPurchase, RefPayment, RefWriteOff, RefCreditNote,
		RefDebitNote, RefPartnerClearing, RefPartnerClearingCOGS, RefBalancingAdjustment:
		return true
	}
	return false
}

// Kind separates ordinary entries from corrections.
type Kind string

const (
	KindStandard            Kind = "standard"
	KindBalancingAdjustment Kind = "balancing_adjustment"
)

// Line is one debit or credit against an account.
type Line struct {
	ID          id.ID       `db:"id" json:"id"`
	EntryID     id.ID       `db:"entry_id" json:"entryId"`
	LineNo      int         `db:"line_no" json:"lineNo"`
	AccountID   id.ID       `db:"account_id" json:"accountId"`
	Debit       types.Money `db:"debit" json:"debit"`
	Credit      types.Money `db:"credit" json:"credit"`
	Description string      `db:"description" json:"description,omitempty"`

	// Original currency amount and the rate used, for foreign-currency postings.
	CurrencyCode   string      `db:"currency_code" json:"currencyCode,omitempty"`
	OriginalAmount types.Money `db:"original_amount" json:"originalAmount"`
	ExchangeRate   types.Money `db:"exchange_rate" json:"exchangeRate"`
}

// WithCurrency records the original currency amount of the line.
func (l Line) WithCurrency(code string, original, rate types.Money) Line {
	l.CurrencyCode = code
	l.OriginalAmount = original
	l.ExchangeRate = rate
	return l
}

// Dr builds a debit line.
func Dr(accountID id.ID, amount types.Money, description string) Line {
	return Line{AccountID: accountID, Debit: amount, Credit: types.Zero(), Description: description}
}

// Cr builds a credit line.
func Cr(accountID id.ID, amount types.Money, description string) Line {
	return Line{AccountID: accountID, Debit: types.Zero(), Credit: amount, Description: description}
}

// Validate checks a single line.
func (l *Line) Validate(ctx context.Context) error {
	if id.IsNil(l.AccountID) {
		return apperror.NewValidation("account is required").WithDetail("line", l.LineNo)
	}
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return apperror.NewValidation("amounts must not be negative").WithDetail("line", l.LineNo)
	}
	if l.Debit.IsPositive() == l.Credit.IsPositive() {
		return apperror.NewValidation("exactly one of debit or credit must be non-zero").
			WithDetail("line", l.LineNo)
	}
	return nil
}

// Entry is a journal entry with its lines.
type Entry struct {
	ID            id.ID         `db:"id" json:"id"`
	CompanyID     id.ID         `db:"company_id" json:"companyId"`
	Number        string        `db:"number" json:"number"`
	Date          time.Time     `db:"entry_date" json:"date"`
	ReferenceType ReferenceType `db:"reference_type" json:"referenceType"`
	ReferenceID   id.ID         `db:"reference_id" json:"referenceId"`
	Kind          Kind          `db:"kind" json:"kind"`
	Description   string        `db:"description" json:"description,omitempty"`

	// Location optionally scopes the entry like the inventory it records.
	entity.Location

	// AdjustsEntryID is set on balancing adjustments.
	AdjustsEntryID id.ID `db:"adjusts_entry_id" json:"adjustsEntryId,omitempty"`

	IsDeleted      bool       `db:"is_deleted" json:"isDeleted"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeletionReason string     `db:"deletion_reason" json:"deletionReason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy"`

	Lines []Line `db:"-" json:"lines"`
}

// Totals sums debit and credit of the entry.
func (e *Entry) Totals() (types.Money, types.Money) {
	return sumLines(e.Lines)
}

// BalanceResult is the outcome of a balance check.
type BalanceResult struct {
	Balanced    bool        `json:"balanced"`
	TotalDebit  types.Money `json:"totalDebit"`
	TotalCredit types.Money `json:"totalCredit"`
	Difference  types.Money `json:"difference"`
}

func sumLines(lines []Line) (types.Money, types.Money) {
	debit, credit := types.Zero(), types.Zero()
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// ValidateBalance sums both columns; balanced iff |debit - credit| < epsilon.
func ValidateBalance(lines []Line, epsilon types.Money) BalanceResult {
	debit, credit := sumLines(lines)
	diff := debit.Sub(credit)
	return BalanceResult{
		Balanced:    diff.Abs().LessThan(epsilon),
		TotalDebit:  debit,
		TotalCredit: credit,
		Difference:  diff,
	}
}
