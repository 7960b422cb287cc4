package memory

import (
	"context"
	"sort"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	s *Store
}

// Stock returns the stock register repository.
func (s *Store) Stock() *StockRepo {
	return &StockRepo{s: s}
}

var _ stock.Repository = (*StockRepo)(nil)

func (r *StockRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	return r.s.do(ctx, "stock.CreateMovements", func(u *unit) error {
		n := len(r.s.movements)
		r.s.movements = append(r.s.movements, movements...)
		u.onRollback(func() { r.s.movements = r.s.movements[:n] })
		return nil
	})
}

func (r *StockRepo) GetMovementsByRecorder(ctx context.Context, companyID id.ID, recorderType string, recorderID id.ID) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	err := r.s.do(ctx, "stock.GetMovementsByRecorder", func(*unit) error {
		for _, m := range r.s.movements {
			if m.CompanyID == companyID && m.RecorderType == recorderType && m.RecorderID == recorderID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

func (r *StockRepo) GetBalances(ctx context.Context, companyID id.ID, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	wanted := make(map[id.ID]bool, len(filter.ProductIDs))
	for _, p := range filter.ProductIDs {
		wanted[p] = true
	}

	var out []entity.StockBalance
	err := r.s.do(ctx, "stock.GetBalances", func(*unit) error {
		index := make(map[string]int)
		for i := range r.s.movements {
			m := &r.s.movements[i]
			if m.CompanyID != companyID {
				continue
			}
			if len(wanted) > 0 && !wanted[m.ProductID] {
				continue
			}
			if filter.Custody != "" && m.Custody != filter.Custody {
				continue
			}
			key := m.ProductID.String() + "|" + m.Location.Key() + "|" + string(m.Custody)
			idx, ok := index[key]
			if !ok {
				idx = len(out)
				index[key] = idx
				out = append(out, entity.StockBalance{
					Location:  m.Location,
					Custody:   m.Custody,
					ProductID: m.ProductID,
				})
			}
			out[idx].Quantity += m.SignedQuantity()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if filter.ExcludeZero {
		kept := out[:0]
		for _, b := range out {
			if !b.Quantity.IsZero() {
				kept = append(kept, b)
			}
		}
		out = kept
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID.String() < out[j].ProductID.String()
		}
		if out[i].Custody != out[j].Custody {
			return out[i].Custody < out[j].Custody
		}
		return out[i].Location.Key() < out[j].Location.Key()
	})
	return out, nil
}
