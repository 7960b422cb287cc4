package memory

import (
	"context"
	"sort"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/costlayer"
)

// CostLayerRepo implements costlayer.Repository.
type CostLayerRepo struct {
	s *Store
}

// CostLayers returns the cost layer repository.
func (s *Store) CostLayers() *CostLayerRepo {
	return &CostLayerRepo{s: s}
}

var _ costlayer.Repository = (*CostLayerRepo)(nil)

// LockScope is a no-op: a unit already holds the store lock.
func (r *CostLayerRepo) LockScope(ctx context.Context, scope costlayer.Scope) error {
	return r.s.do(ctx, "costlayer.LockScope", func(*unit) error { return nil })
}

func (r *CostLayerRepo) ListEligible(ctx context.Context, scope costlayer.Scope, asOf time.Time) ([]costlayer.Layer, error) {
	var out []costlayer.Layer
	err := r.s.do(ctx, "costlayer.ListEligible", func(*unit) error {
		for _, l := range r.s.layers {
			if inScope(l, scope) && l.RemainingQty.IsPositive() && !l.ReceivedAt.After(asOf) {
				out = append(out, *l)
			}
		}
		sortLayers(out)
		return nil
	})
	return out, err
}

func (r *CostLayerRepo) Insert(ctx context.Context, layer *costlayer.Layer) error {
	return r.s.do(ctx, "costlayer.Insert", func(u *unit) error {
		if _, ok := r.s.layers[layer.ID]; ok {
			return apperror.NewConflict("cost layer already exists").WithDetail("layer_id", layer.ID.String())
		}
		r.s.layerSeq++
		layer.Sequence = r.s.layerSeq
		cp := *layer
		r.s.layers[layer.ID] = &cp
		u.onRollback(func() { delete(r.s.layers, cp.ID) })
		return nil
	})
}

func (r *CostLayerRepo) Decrement(ctx context.Context, companyID, layerID id.ID, expected, qty types.Quantity) error {
	return r.s.do(ctx, "costlayer.Decrement", func(u *unit) error {
		l, err := r.get(companyID, layerID)
		if err != nil {
			return err
		}
		if l.RemainingQty != expected || qty > l.RemainingQty {
			return apperror.NewConcurrentModification("cost_layer", layerID.String())
		}
		prev := l.RemainingQty
		l.RemainingQty -= qty
		u.onRollback(func() { l.RemainingQty = prev })
		return nil
	})
}

func (r *CostLayerRepo) Increment(ctx context.Context, companyID, layerID id.ID, qty types.Quantity) error {
	return r.s.do(ctx, "costlayer.Increment", func(u *unit) error {
		l, err := r.get(companyID, layerID)
		if err != nil {
			return err
		}
		if l.RemainingQty+qty > l.ReceivedQty {
			return apperror.NewInvalidState("cost_layer", "restored quantity exceeds received quantity").
				WithDetail("layer_id", layerID.String()).
				WithDetail("remaining", l.RemainingQty.String()).
				WithDetail("quantity", qty.String())
		}
		prev := l.RemainingQty
		l.RemainingQty += qty
		u.onRollback(func() { l.RemainingQty = prev })
		return nil
	})
}

func (r *CostLayerRepo) GetByIDs(ctx context.Context, companyID id.ID, ids []id.ID) ([]costlayer.Layer, error) {
	var out []costlayer.Layer
	err := r.s.do(ctx, "costlayer.GetByIDs", func(*unit) error {
		for _, layerID := range ids {
			if l, ok := r.s.layers[layerID]; ok && l.CompanyID == companyID {
				out = append(out, *l)
			}
		}
		sortLayers(out)
		return nil
	})
	return out, err
}

func (r *CostLayerRepo) ListBySource(ctx context.Context, companyID id.ID, sourceType costlayer.SourceType, sourceID id.ID) ([]costlayer.Layer, error) {
	var out []costlayer.Layer
	err := r.s.do(ctx, "costlayer.ListBySource", func(*unit) error {
		for _, l := range r.s.layers {
			if l.CompanyID == companyID && l.SourceType == sourceType && l.SourceID == sourceID {
				out = append(out, *l)
			}
		}
		sortLayers(out)
		return nil
	})
	return out, err
}

func (r *CostLayerRepo) SumAvailable(ctx context.Context, scope costlayer.Scope, asOf time.Time) (types.Quantity, error) {
	var total types.Quantity
	err := r.s.do(ctx, "costlayer.SumAvailable", func(*unit) error {
		for _, l := range r.s.layers {
			if inScope(l, scope) && !l.ReceivedAt.After(asOf) {
				total += l.RemainingQty
			}
		}
		return nil
	})
	return total, err
}

func (r *CostLayerRepo) InsertCOGS(ctx context.Context, cogs *costlayer.COGSTransaction) error {
	return r.s.do(ctx, "costlayer.InsertCOGS", func(u *unit) error {
		cp := *cogs
		cp.Details = append([]costlayer.ConsumptionDetail(nil), cogs.Details...)
		n := len(r.s.cogs)
		r.s.cogs = append(r.s.cogs, cp)
		u.onRollback(func() { r.s.cogs = r.s.cogs[:n] })
		return nil
	})
}

func (r *CostLayerRepo) ListActiveCOGS(ctx context.Context, companyID id.ID, sourceType string, sourceID id.ID) ([]costlayer.COGSTransaction, error) {
	var out []costlayer.COGSTransaction
	err := r.s.do(ctx, "costlayer.ListActiveCOGS", func(*unit) error {
		reversed := make(map[id.ID]bool)
		for _, c := range r.s.cogs {
			if !id.IsNil(c.ReversalOf) {
				reversed[c.ReversalOf] = true
			}
		}
		for _, c := range r.s.cogs {
			if c.CompanyID != companyID || c.SourceType != sourceType || c.SourceID != sourceID {
				continue
			}
			if !id.IsNil(c.ReversalOf) || reversed[c.ID] {
				continue
			}
			c.Details = append([]costlayer.ConsumptionDetail(nil), c.Details...)
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func (r *CostLayerRepo) Valuation(ctx context.Context, filter costlayer.ValuationFilter) ([]costlayer.ValuationRow, error) {
	var out []costlayer.ValuationRow
	err := r.s.do(ctx, "costlayer.Valuation", func(*unit) error {
		wanted := make(map[id.ID]bool, len(filter.ProductIDs))
		for _, p := range filter.ProductIDs {
			wanted[p] = true
		}

		index := make(map[string]int)
		for _, l := range r.s.layers {
			if l.CompanyID != filter.CompanyID || !l.RemainingQty.IsPositive() {
				continue
			}
			if len(wanted) > 0 && !wanted[l.ProductID] {
				continue
			}
			key := l.ProductID.String() + "|" + l.Location.Key()
			i, ok := index[key]
			if !ok {
				i = len(out)
				index[key] = i
				out = append(out, costlayer.ValuationRow{
					ProductID: l.ProductID,
					Location:  l.Location,
					Value:     types.Zero(),
				})
			}
			out[i].Quantity += l.RemainingQty
			out[i].Value = out[i].Value.Add(l.RemainingQty.MulMoney(l.UnitCost))
		}
		sort.Slice(out, func(a, b int) bool {
			if out[a].ProductID != out[b].ProductID {
				return out[a].ProductID.String() < out[b].ProductID.String()
			}
			return out[a].Location.Key() < out[b].Location.Key()
		})
		for i := range out {
			out[i].Value = types.RoundMinor(out[i].Value, types.ReportingDigits)
		}
		return nil
	})
	return out, err
}

// Layer returns a copy of one layer for inspection.
func (r *CostLayerRepo) Layer(layerID id.ID) (costlayer.Layer, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.layers[layerID]
	if !ok {
		return costlayer.Layer{}, false
	}
	return *l, true
}

// COGS returns all COGS transactions of a company, reversals included.
func (r *CostLayerRepo) COGS(companyID id.ID) []costlayer.COGSTransaction {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []costlayer.COGSTransaction
	for _, c := range r.s.cogs {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	return out
}

func (r *CostLayerRepo) get(companyID, layerID id.ID) (*costlayer.Layer, error) {
	l, ok := r.s.layers[layerID]
	if !ok || l.CompanyID != companyID {
		return nil, apperror.NewNotFound("cost_layer", layerID.String())
	}
	return l, nil
}

func inScope(l *costlayer.Layer, scope costlayer.Scope) bool {
	return l.CompanyID == scope.CompanyID && l.ProductID == scope.ProductID && l.Location.Equal(scope.Location)
}

func sortLayers(layers []costlayer.Layer) {
	sort.Slice(layers, func(i, j int) bool {
		if !layers[i].ReceivedAt.Equal(layers[j].ReceivedAt) {
			return layers[i].ReceivedAt.Before(layers[j].ReceivedAt)
		}
		return layers[i].Sequence < layers[j].Sequence
	})
}
