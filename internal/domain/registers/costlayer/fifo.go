package costlayer

import (
	"sort"

	"costledger/internal/core/apperror"
	"costledger/internal/core/types"
)

// sortFIFO orders layers oldest first; Sequence breaks ties on equal timestamps.
func sortFIFO(layers []Layer) {
	sort.SliceStable(layers, func(i, j int) bool {
		if !layers[i].ReceivedAt.Equal(layers[j].ReceivedAt) {
			return layers[i].ReceivedAt.Before(layers[j].ReceivedAt)
		}
		return layers[i].Sequence < layers[j].Sequence
	})
}

// planFIFO decides how much to take from each layer without touching them.
// It returns INSUFFICIENT_INVENTORY when the layers cannot cover qty, so the
// caller never applies a partial plan.
func planFIFO(scope Scope, layers []Layer, qty types.Quantity) (*Consumption, error) {
	ordered := make([]Layer, len(layers))
	copy(ordered, layers)
	sortFIFO(ordered)

	var available types.Quantity
	for _, l := range ordered {
		available += l.RemainingQty
	}
	if available < qty {
		return nil, apperror.NewInsufficientInventory(scope.ProductID.String(), qty.String(), available.String()).
			WithDetail("company_id", scope.CompanyID.String())
	}

	out := &Consumption{
		Scope:     scope,
		Quantity:  qty,
		TotalCost: types.Zero(),
		Details:   make([]ConsumptionDetail, 0, 2),
	}

	remaining := qty
	for _, l := range ordered {
		if remaining.IsZero() {
			break
		}
		if !l.RemainingQty.IsPositive() {
			continue
		}

		take := types.MinQuantity(remaining, l.RemainingQty)
		cost := take.MulMoney(l.UnitCost)
		out.Details = append(out.Details, ConsumptionDetail{
			LayerID:  l.ID,
			Quantity: take,
			UnitCost: l.UnitCost,
			Cost:     cost,
		})
		out.TotalCost = out.TotalCost.Add(cost)
		remaining -= take
	}

	return out, nil
}

// SplitFront takes qty from the front of details in order and returns the
// taken part and the rest. Used to cost a portion of an earlier consumption.
func SplitFront(details []ConsumptionDetail, qty types.Quantity) (taken, rest []ConsumptionDetail) {
	remaining := qty
	for i, d := range details {
		if remaining.IsZero() {
			rest = append(rest, details[i:]...)
			return taken, rest
		}
		take := types.MinQuantity(remaining, d.Quantity)
		taken = append(taken, newDetail(d, take))
		if take < d.Quantity {
			rest = append(rest, newDetail(d, d.Quantity-take))
		}
		remaining -= take
	}
	return taken, rest
}

// SplitBack takes qty from the end of details, newest allocation first.
func SplitBack(details []ConsumptionDetail, qty types.Quantity) (taken, rest []ConsumptionDetail) {
	rest = make([]ConsumptionDetail, len(details))
	copy(rest, details)

	remaining := qty
	for i := len(rest) - 1; i >= 0 && remaining.IsPositive(); i-- {
		d := rest[i]
		take := types.MinQuantity(remaining, d.Quantity)
		taken = append([]ConsumptionDetail{newDetail(d, take)}, taken...)
		if take == d.Quantity {
			rest = rest[:i]
		} else {
			rest[i] = newDetail(d, d.Quantity-take)
		}
		remaining -= take
	}
	return taken, rest
}

// SumDetails returns total quantity and cost of details.
func SumDetails(details []ConsumptionDetail) (types.Quantity, types.Money) {
	var qty types.Quantity
	cost := types.Zero()
	for _, d := range details {
		qty += d.Quantity
		cost = cost.Add(d.Cost)
	}
	return qty, cost
}

func newDetail(d ConsumptionDetail, qty types.Quantity) ConsumptionDetail {
	return ConsumptionDetail{
		LayerID:  d.LayerID,
		Quantity: qty,
		UnitCost: d.UnitCost,
		Cost:     qty.MulMoney(d.UnitCost),
	}
}
