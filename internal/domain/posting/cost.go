package posting

import (
	"context"
	"time"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/ledger"
	"costledger/internal/domain/registers/costlayer"
)

type costItem struct {
	ProductID id.ID
	Quantity  types.Quantity
}

// consumeItems runs FIFO for every item at one location and stores a COGS
// transaction per item. It returns the unrounded total cost and the stock
// movements taking the goods out of own custody.
func (e *Engine) consumeItems(
	ctx context.Context,
	companyID id.ID,
	loc entity.Location,
	asOf time.Time,
	sourceType string,
	sourceID id.ID,
	items []costItem,
	res *Result,
) (types.Money, []entity.StockMovement, error) {
	total := types.Zero()
	movements := make([]entity.StockMovement, 0, len(items))

	for _, item := range items {
		consumption, err := e.layers.Consume(ctx, costlayer.ConsumeRequest{
			Scope: costlayer.Scope{
				CompanyID: companyID,
				ProductID: item.ProductID,
				Location:  loc,
			},
			Quantity: item.Quantity,
			AsOf:     asOf,
		})
		if err != nil {
			return total, nil, err
		}
		if _, err := e.layers.RecordCOGS(ctx, sourceType, sourceID, consumption); err != nil {
			return total, nil, err
		}

		total = total.Add(consumption.TotalCost)
		res.Costs = append(res.Costs, CostLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Cost:      consumption.TotalCost,
			Layers:    len(consumption.Details),
		})
		movements = append(movements, entity.NewStockMovement(companyID, sourceID, sourceType, asOf,
			entity.RecordTypeExpense, loc, item.ProductID, item.Quantity))
	}
	return total, movements, nil
}

// nonZero drops lines whose amount rounds to zero in the reporting unit.
func nonZero(lines ...ledger.Line) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for _, l := range lines {
		if types.RoundMinor(l.Debit, types.ReportingDigits).IsZero() &&
			types.RoundMinor(l.Credit, types.ReportingDigits).IsZero() {
			continue
		}
		out = append(out, l)
	}
	return out
}
