package posting

import (
	"context"
	"fmt"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/documents/invoice"
	"costledger/internal/domain/ledger"
)

// PostSaleAndCOGS recognizes revenue for an invoice and the FIFO cost of
// its goods. When revenue was posted earlier without cost, only the cost
// step runs.
func (e *Engine) PostSaleAndCOGS(ctx context.Context, companyID, invoiceID id.ID, overrides Overrides) (*Result, error) {
	return e.runInvoice(ctx, OpSale, companyID, invoiceID, func(ctx context.Context, res *Result) error {
		inv, err := e.invoices.GetByID(ctx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if err := inv.CanPost(ctx); err != nil {
			return err
		}

		salePosted, err := e.ledger.IsPosted(ctx, companyID, ledger.RefSale, invoiceID)
		if err != nil {
			return err
		}
		costDone, err := e.costRecorded(ctx, companyID, ledger.RefSaleCOGS, SourceSale, invoiceID)
		if err != nil {
			return err
		}
		items := saleItems(inv)
		needsCost := len(items) > 0

		if salePosted && (costDone || !needsCost) {
			res.AlreadyPosted = true
			return nil
		}
		if costDone && !salePosted {
			return apperror.NewInvalidState("invoice", "cost is recorded but revenue is not").
				WithDetail("invoice_id", invoiceID.String())
		}

		records, err := e.partners.Records(ctx, companyID, invoiceID)
		if err != nil {
			return fmt.Errorf("load partner records: %w", err)
		}
		// Fully returned records leave the invoice free for a normal sale.
		for _, rec := range records {
			switch {
			case rec.ClearedQty.IsPositive():
				return apperror.NewInvalidState("invoice", "revenue was recognized at partner clearing").
					WithDetail("invoice_id", invoiceID.String()).
					WithDetail("partner_id", rec.PartnerID.String())
			case rec.WithPartner().IsPositive():
				return apperror.NewInvalidState("invoice", "goods are with a partner; revenue is recognized at clearing").
					WithDetail("invoice_id", invoiceID.String()).
					WithDetail("partner_id", rec.PartnerID.String())
			}
		}

		roles := []accounts.Role{accounts.RoleAccountsReceivable, accounts.RoleSalesRevenue}
		if !inv.TaxAmount.IsZero() {
			roles = append(roles, accounts.RoleTaxPayable)
		}
		if needsCost {
			roles = append(roles, accounts.RoleCOGS, accounts.RoleInventory)
		}
		acc, err := e.resolver.ResolveSet(ctx, companyID, roles, overrides)
		if err != nil {
			return err
		}

		if !salePosted {
			entry, err := e.postRevenue(ctx, inv, acc)
			if err != nil {
				return err
			}
			res.addEntry(entry)
		}

		if !needsCost {
			return nil
		}
		total, movements, err := e.consumeItems(ctx, companyID, inv.Location, inv.Date, SourceSale, invoiceID, items, res)
		if err != nil {
			return err
		}
		if err := e.stock.RecordMovements(ctx, movements); err != nil {
			return err
		}

		res.COGSTotal = types.RoundMinor(total, types.ReportingDigits)
		lines := nonZero(
			ledger.Dr(acc[accounts.RoleCOGS].ID, res.COGSTotal, "cost of goods sold "+inv.Number),
			ledger.Cr(acc[accounts.RoleInventory].ID, res.COGSTotal, "inventory issued "+inv.Number),
		)
		if len(lines) == 0 {
			return nil
		}
		entry, err := e.ledger.PostEntry(ctx, ledger.PostRequest{
			CompanyID:     companyID,
			Date:          inv.Date,
			ReferenceType: ledger.RefSaleCOGS,
			ReferenceID:   invoiceID,
			Description:   "COGS for invoice " + inv.Number,
			Location:      inv.Location,
			Lines:         lines,
		})
		if err != nil {
			return err
		}
		res.addEntry(entry)
		return nil
	})
}

// postRevenue posts Dr receivable / Cr revenue / Cr tax in base currency.
func (e *Engine) postRevenue(ctx context.Context, inv *invoice.Invoice, acc map[accounts.Role]*accounts.Account) (*ledger.Entry, error) {
	subtotal, tax, total := inv.BaseAmounts()

	lines := []ledger.Line{
		ledger.Dr(acc[accounts.RoleAccountsReceivable].ID, total, "receivable "+inv.Number).
			WithCurrency(inv.CurrencyCode, inv.Total, inv.ExchangeRate),
		ledger.Cr(acc[accounts.RoleSalesRevenue].ID, subtotal, "revenue "+inv.Number).
			WithCurrency(inv.CurrencyCode, inv.Subtotal, inv.ExchangeRate),
	}
	if taxAcc, ok := acc[accounts.RoleTaxPayable]; ok {
		lines = append(lines, ledger.Cr(taxAcc.ID, tax, "tax "+inv.Number).
			WithCurrency(inv.CurrencyCode, inv.TaxAmount, inv.ExchangeRate))
	}

	return e.ledger.PostEntry(ctx, ledger.PostRequest{
		CompanyID:     inv.CompanyID,
		Date:          inv.Date,
		ReferenceType: ledger.RefSale,
		ReferenceID:   inv.ID,
		Description:   "Sale " + inv.Number,
		Location:      inv.Location,
		Lines:         nonZero(lines...),
	})
}

// ReverseSale voids a posted sale: both entries are soft-deleted, the
// consumed units go back to their layers and the stock register gets the
// opposite movements.
func (e *Engine) ReverseSale(ctx context.Context, companyID, invoiceID id.ID, reason string) (*Result, error) {
	return e.runInvoice(ctx, OpReverseSale, companyID, invoiceID, func(ctx context.Context, res *Result) error {
		salePosted, err := e.ledger.IsPosted(ctx, companyID, ledger.RefSale, invoiceID)
		if err != nil {
			return err
		}
		if !salePosted {
			return apperror.NewNotFound("sale_entry", invoiceID.String())
		}

		cogsPosted, err := e.ledger.IsPosted(ctx, companyID, ledger.RefSaleCOGS, invoiceID)
		if err != nil {
			return err
		}
		if cogsPosted {
			entry, err := e.ledger.ReverseEntry(ctx, companyID, ledger.RefSaleCOGS, invoiceID, reason)
			if err != nil {
				return err
			}
			res.addEntry(entry)
		}
		entry, err := e.ledger.ReverseEntry(ctx, companyID, ledger.RefSale, invoiceID, reason)
		if err != nil {
			return err
		}
		res.addEntry(entry)

		reversals, err := e.layers.ReverseCOGS(ctx, companyID, SourceSale, invoiceID)
		if err != nil {
			return err
		}
		total := types.Zero()
		movements := make([]entity.StockMovement, 0, len(reversals))
		for _, r := range reversals {
			total = total.Sub(r.TotalCost)
			movements = append(movements, entity.NewStockMovement(companyID, invoiceID, SourceSale+"_reversal", e.now(),
				entity.RecordTypeReceipt, r.Location, r.ProductID, r.Quantity.Neg()))
		}
		res.COGSTotal = types.RoundMinor(total, types.ReportingDigits)
		return e.stock.RecordMovements(ctx, movements)
	})
}

func saleItems(inv *invoice.Invoice) []costItem {
	lines := inv.InventoryLines()
	items := make([]costItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, costItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}
