package posting

import (
	"context"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/documents/bill"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/registers/costlayer"
)

// PostBillReceipt opens a cost layer for every stocked line of a bill and
// posts Dr inventory / Dr expense / Dr tax receivable / Cr payable.
func (e *Engine) PostBillReceipt(ctx context.Context, companyID, billID id.ID, overrides Overrides) (*Result, error) {
	return e.run(ctx, OpBillReceipt, companyID, billID, func(ctx context.Context, res *Result) error {
		b, err := e.bills.GetByID(ctx, companyID, billID)
		if err != nil {
			return err
		}
		if err := b.CanPost(ctx); err != nil {
			return err
		}

		posted, err := e.ledger.IsPosted(ctx, companyID, ledger.RefPurchase, billID)
		if err != nil {
			return err
		}
		if posted {
			res.AlreadyPosted = true
			return nil
		}

		acc, err := e.resolver.ResolveSet(ctx, companyID, billRoles(b), overrides)
		if err != nil {
			return err
		}

		inventory := types.Zero()
		var lines []ledger.Line
		var movements []entity.StockMovement
		for _, l := range b.Lines {
			amount := types.RoundMinor(b.ToBase(l.Amount), types.ReportingDigits)
			if !l.IsInventory() {
				accountID := l.ExpenseAccountID
				if id.IsNil(accountID) {
					accountID = acc[accounts.RolePurchaseExpense].ID
				}
				lines = append(lines, ledger.Dr(accountID, amount, l.Description).
					WithCurrency(b.CurrencyCode, l.Amount, b.ExchangeRate))
				continue
			}

			if _, err := e.layers.Receive(ctx, costlayer.ReceiveRequest{
				Scope: costlayer.Scope{
					CompanyID: companyID,
					ProductID: l.ProductID,
					Location:  b.Location,
				},
				Quantity:   l.Quantity,
				UnitCost:   b.ToBase(l.UnitCost),
				ReceivedAt: b.Date,
				SourceType: costlayer.SourcePurchase,
				SourceID:   billID,
			}); err != nil {
				return err
			}
			inventory = inventory.Add(amount)
			movements = append(movements, entity.NewStockMovement(companyID, billID, string(ledger.RefPurchase), b.Date,
				entity.RecordTypeReceipt, b.Location, l.ProductID, l.Quantity))
		}
		if err := e.stock.RecordMovements(ctx, movements); err != nil {
			return err
		}

		if invAcc, ok := acc[accounts.RoleInventory]; ok {
			lines = append(lines, ledger.Dr(invAcc.ID, inventory, "inventory received "+b.Number))
		}
		if taxAcc, ok := acc[accounts.RoleTaxReceivable]; ok {
			lines = append(lines, ledger.Dr(taxAcc.ID, types.RoundMinor(b.ToBase(b.TaxAmount), types.ReportingDigits), "input tax "+b.Number).
				WithCurrency(b.CurrencyCode, b.TaxAmount, b.ExchangeRate))
		}
		payable := types.Zero()
		for _, l := range lines {
			payable = payable.Add(l.Debit)
		}
		lines = append(lines, ledger.Cr(acc[accounts.RoleAccountsPayable].ID, payable, "payable "+b.Number).
			WithCurrency(b.CurrencyCode, b.Total, b.ExchangeRate))

		entry, err := e.ledger.PostEntry(ctx, ledger.PostRequest{
			CompanyID:     companyID,
			Date:          b.Date,
			ReferenceType: ledger.RefPurchase,
			ReferenceID:   billID,
			Description:   "Bill " + b.Number,
			Location:      b.Location,
			Lines:         nonZero(lines...),
		})
		if err != nil {
			return err
		}
		res.addEntry(entry)
		return nil
	})
}

func billRoles(b *bill.Bill) []accounts.Role {
	roles := []accounts.Role{accounts.RoleAccountsPayable}
	var stocked, uncoded bool
	for _, l := range b.Lines {
		if l.IsInventory() {
			stocked = true
		} else if id.IsNil(l.ExpenseAccountID) {
			uncoded = true
		}
	}
	if stocked {
		roles = append(roles, accounts.RoleInventory)
	}
	if uncoded {
		roles = append(roles, accounts.RolePurchaseExpense)
	}
	if !b.TaxAmount.IsZero() {
		roles = append(roles, accounts.RoleTaxReceivable)
	}
	return roles
}
