package posting

import (
	"context"

	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/ledger"
)

// PostWriteOff takes the written-off goods out of the FIFO layers and posts
// Dr write-off expense / Cr inventory. Nil account ids fall back to the
// resolver.
func (e *Engine) PostWriteOff(ctx context.Context, companyID, writeOffID, expenseAccountID, inventoryAccountID id.ID) (*Result, error) {
	return e.run(ctx, OpWriteOff, companyID, writeOffID, func(ctx context.Context, res *Result) error {
		wo, err := e.writeOffs.GetByID(ctx, companyID, writeOffID)
		if err != nil {
			return err
		}
		if err := wo.CanPost(ctx); err != nil {
			return err
		}

		done, err := e.costRecorded(ctx, companyID, ledger.RefWriteOff, SourceWriteOff, writeOffID)
		if err != nil {
			return err
		}
		if done {
			res.AlreadyPosted = true
			return nil
		}

		acc, err := e.resolver.ResolveSet(ctx, companyID,
			[]accounts.Role{accounts.RoleInventoryWriteOff, accounts.RoleInventory},
			Overrides{
				accounts.RoleInventoryWriteOff: expenseAccountID,
				accounts.RoleInventory:         inventoryAccountID,
			})
		if err != nil {
			return err
		}

		items := make([]costItem, 0, len(wo.Lines))
		for _, l := range wo.Lines {
			items = append(items, costItem{ProductID: l.ProductID, Quantity: l.Quantity})
		}
		total, movements, err := e.consumeItems(ctx, companyID, wo.Location, wo.Date, SourceWriteOff, writeOffID, items, res)
		if err != nil {
			return err
		}
		if err := e.stock.RecordMovements(ctx, movements); err != nil {
			return err
		}

		res.COGSTotal = types.RoundMinor(total, types.ReportingDigits)
		lines := nonZero(
			ledger.Dr(acc[accounts.RoleInventoryWriteOff].ID, res.COGSTotal, "write-off "+wo.Number),
			ledger.Cr(acc[accounts.RoleInventory].ID, res.COGSTotal, "inventory written off "+wo.Number),
		)
		if len(lines) == 0 {
			return nil
		}
		entry, err := e.ledger.PostEntry(ctx, ledger.PostRequest{
			CompanyID:     companyID,
			Date:          wo.Date,
			ReferenceType: ledger.RefWriteOff,
			ReferenceID:   writeOffID,
			Description:   "Write-off " + wo.Number + " " + wo.Reason,
			Location:      wo.Location,
			Lines:         lines,
		})
		if err != nil {
			return err
		}
		res.addEntry(entry)
		return nil
	})
}
