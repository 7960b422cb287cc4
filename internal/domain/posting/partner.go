package posting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/registers/costlayer"
)

// TransferToPartner hands the goods of an invoice to a partner. Nothing is
// posted to the ledger. Repeating the call for the same partner is a no-op.
func (e *Engine) TransferToPartner(ctx context.Context, companyID, invoiceID, partnerID id.ID) (*Result, error) {
	return e.runInvoice(ctx, OpTransfer, companyID, invoiceID, func(ctx context.Context, res *Result) error {
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
		if salePosted {
			return apperror.NewInvalidState("invoice", "revenue is already recognized for this invoice").
				WithDetail("invoice_id", invoiceID.String())
		}

		existing, err := e.partners.Records(ctx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if len(existing) > 0 && existing[0].PartnerID == partnerID {
			res.AlreadyPosted = true
			res.Records = existing
			return nil
		}

		// One record per product.
		qty := make(map[id.ID]types.Quantity)
		var order []id.ID
		for _, l := range inv.InventoryLines() {
			if _, ok := qty[l.ProductID]; !ok {
				order = append(order, l.ProductID)
			}
			qty[l.ProductID] += l.Quantity
		}
		if len(order) == 0 {
			return apperror.NewValidation("invoice has no stocked lines").
				WithDetail("invoice_id", invoiceID.String())
		}
		items := make([]consignment.TransferItem, 0, len(order))
		for _, p := range order {
			items = append(items, consignment.TransferItem{ProductID: p, Quantity: qty[p]})
		}

		records, err := e.partners.TransferOut(ctx, consignment.TransferRequest{
			CompanyID:   companyID,
			PartnerID:   partnerID,
			SourceDocID: invoiceID,
			Location:    inv.Location,
			Date:        inv.Date,
			Items:       items,
		})
		if err != nil {
			return err
		}
		res.Records = records
		return nil
	})
}

// ClearRequest confirms payment for goods held by a partner.
type ClearRequest struct {
	CompanyID id.ID
	InvoiceID id.ID
	// PaidRatio in (0, 1] applies to what is still with the partner.
	PaidRatio decimal.Decimal
	// Quantities replaces the ratio with explicit quantities per product.
	Quantities map[id.ID]types.Quantity
	// PaymentID keys the clearing; a fresh id is used when it is nil.
	PaymentID id.ID
	Date      time.Time
	Overrides Overrides
}

// ClearPartnerBalance realizes revenue and cost for the cleared share of a
// partner balance. Both entries reference the payment, so the same payment
// cannot be cleared twice.
func (e *Engine) ClearPartnerBalance(ctx context.Context, req ClearRequest) (*Result, error) {
	clearingID := req.PaymentID
	if id.IsNil(clearingID) {
		clearingID = id.New()
	}
	date := req.Date
	if date.IsZero() {
		date = e.now()
	}

	return e.runInvoice(ctx, OpClearPartner, req.CompanyID, req.InvoiceID, func(ctx context.Context, res *Result) error {
		res.ClearingID = clearingID

		// Zero-priced clearings post no revenue; their COGS rows carry the key.
		posted, err := e.ledger.IsPosted(ctx, req.CompanyID, ledger.RefPartnerClearing, clearingID)
		if err == nil && !posted {
			posted, err = e.costRecorded(ctx, req.CompanyID, ledger.RefPartnerClearingCOGS, SourcePartnerClearing, clearingID)
		}
		if err != nil {
			return err
		}
		if posted {
			res.AlreadyPosted = true
			return nil
		}

		inv, err := e.invoices.GetByID(ctx, req.CompanyID, req.InvoiceID)
		if err != nil {
			return err
		}
		if err := inv.CanPost(ctx); err != nil {
			return err
		}

		cleared, err := e.partners.Clear(ctx, consignment.ClearRequest{
			CompanyID:   req.CompanyID,
			SourceDocID: req.InvoiceID,
			PaidRatio:   req.PaidRatio,
			Quantities:  req.Quantities,
			Date:        date,
		})
		if err != nil {
			return err
		}
		res.Cleared = cleared

		subtotal, tax, cost := types.Zero(), types.Zero(), types.Zero()
		for _, c := range cleared {
			if c.Clipped.IsPositive() {
				res.Clipped = append(res.Clipped, Clip{
					ProductID: c.ProductID,
					Requested: c.Requested,
					Applied:   c.Cleared,
					Clipped:   c.Clipped,
				})
			}
			if !c.Cleared.IsPositive() {
				continue
			}

			// Cleared units are priced from the product's lines in order,
			// continuing where earlier clearings stopped.
			net, lineTax := inv.PricedShare(c.ProductID, c.ClearedBefore, c.Cleared)
			subtotal = subtotal.Add(types.RoundMinor(inv.ToBase(net), types.ReportingDigits))
			tax = tax.Add(types.RoundMinor(inv.ToBase(lineTax), types.ReportingDigits))
			cost = cost.Add(c.Cost)

			if _, err := e.layers.RecordCOGS(ctx, SourcePartnerClearing, clearingID, &costlayer.Consumption{
				Scope: costlayer.Scope{
					CompanyID: req.CompanyID,
					ProductID: c.ProductID,
					Location:  inv.Location,
				},
				Quantity:  c.Cleared,
				TotalCost: c.Cost,
				Details:   c.Details,
			}); err != nil {
				return err
			}
			res.Costs = append(res.Costs, CostLine{
				ProductID: c.ProductID,
				Quantity:  c.Cleared,
				Cost:      c.Cost,
				Layers:    len(c.Details),
			})
		}

		hasRevenue := !subtotal.Add(tax).IsZero()
		res.COGSTotal = types.RoundMinor(cost, types.ReportingDigits)
		if !hasRevenue && res.COGSTotal.IsZero() {
			return nil
		}

		var roles []accounts.Role
		if hasRevenue {
			roles = append(roles, accounts.RoleAccountsReceivable, accounts.RoleSalesRevenue)
			if !tax.IsZero() {
				roles = append(roles, accounts.RoleTaxPayable)
			}
		}
		if !res.COGSTotal.IsZero() {
			roles = append(roles, accounts.RoleCOGS, accounts.RoleInventory)
		}
		acc, err := e.resolver.ResolveSet(ctx, req.CompanyID, roles, req.Overrides)
		if err != nil {
			return err
		}

		if hasRevenue {
			revenue := []ledger.Line{
				ledger.Dr(acc[accounts.RoleAccountsReceivable].ID, subtotal.Add(tax), "partner receivable "+inv.Number),
				ledger.Cr(acc[accounts.RoleSalesRevenue].ID, subtotal, "partner revenue "+inv.Number),
			}
			if taxAcc, ok := acc[accounts.RoleTaxPayable]; ok {
				revenue = append(revenue, ledger.Cr(taxAcc.ID, tax, "tax "+inv.Number))
			}
			entry, err := e.ledger.PostEntry(ctx, ledger.PostRequest{
				CompanyID:     req.CompanyID,
				Date:          date,
				ReferenceType: ledger.RefPartnerClearing,
				ReferenceID:   clearingID,
				Description:   "Partner clearing for invoice " + inv.Number,
				Location:      inv.Location,
				Lines:         nonZero(revenue...),
			})
			if err != nil {
				return err
			}
			res.addEntry(entry)
		}

		if res.COGSTotal.IsZero() {
			return nil
		}
		entry, err := e.ledger.PostEntry(ctx, ledger.PostRequest{
			CompanyID:     req.CompanyID,
			Date:          date,
			ReferenceType: ledger.RefPartnerClearingCOGS,
			ReferenceID:   clearingID,
			Description:   "Partner clearing COGS for invoice " + inv.Number,
			Location:      inv.Location,
			Lines: []ledger.Line{
				ledger.Dr(acc[accounts.RoleCOGS].ID, res.COGSTotal, "cost of goods sold "+inv.Number),
				ledger.Cr(acc[accounts.RoleInventory].ID, res.COGSTotal, "inventory cleared "+inv.Number),
			},
			WithoutRevenue: !hasRevenue,
		})
		if err != nil {
			return err
		}
		res.addEntry(entry)
		return nil
	})
}

// ReturnFromPartner brings goods back to own custody. The caller learns
// through Clipped when less came back than was asked for.
func (e *Engine) ReturnFromPartner(ctx context.Context, companyID, invoiceID, productID id.ID, quantity types.Quantity) (*Result, error) {
	return e.runInvoice(ctx, OpReturnPartner, companyID, invoiceID, func(ctx context.Context, res *Result) error {
		returned, err := e.partners.Return(ctx, consignment.ReturnRequest{
			CompanyID:   companyID,
			SourceDocID: invoiceID,
			ProductID:   productID,
			Quantity:    quantity,
			Date:        e.now(),
		})
		if err != nil {
			return err
		}
		res.Returned = returned
		if returned.Clipped.IsPositive() {
			res.Clipped = append(res.Clipped, Clip{
				ProductID: productID,
				Requested: returned.Requested,
				Applied:   returned.Returned,
				Clipped:   returned.Clipped,
			})
		}
		return nil
	})
}
