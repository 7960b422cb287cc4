package memory

import (
	"context"
	"sort"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/registers/costlayer"
)

// ConsignmentRepo implements consignment.Repository.
type ConsignmentRepo struct {
	s *Store
}

// Consignment returns the third-party inventory repository.
func (s *Store) Consignment() *ConsignmentRepo {
	return &ConsignmentRepo{s: s}
}

var _ consignment.Repository = (*ConsignmentRepo)(nil)

func (r *ConsignmentRepo) Insert(ctx context.Context, rec *consignment.Record) error {
	return r.s.do(ctx, "consignment.Insert", func(u *unit) error {
		if _, ok := r.s.records[rec.ID]; ok {
			return apperror.NewConflict("third-party record already exists").WithDetail("record_id", rec.ID.String())
		}
		for _, other := range r.s.records {
			if other.CompanyID == rec.CompanyID && other.SourceDocID == rec.SourceDocID && other.ProductID == rec.ProductID {
				return productTaken(rec)
			}
		}
		cp := copyRecord(rec)
		r.s.records[cp.ID] = cp
		u.onRollback(func() { delete(r.s.records, cp.ID) })
		return nil
	})
}

func (r *ConsignmentRepo) ListBySource(ctx context.Context, companyID, sourceDocID id.ID) ([]consignment.Record, error) {
	var out []consignment.Record
	err := r.s.do(ctx, "consignment.ListBySource", func(*unit) error {
		for _, rec := range r.s.records {
			if rec.CompanyID == companyID && rec.SourceDocID == sourceDocID {
				out = append(out, *copyRecord(rec))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].ID.String() < out[j].ID.String()
		})
		return nil
	})
	return out, err
}

func (r *ConsignmentRepo) Update(ctx context.Context, rec *consignment.Record) error {
	return r.s.do(ctx, "consignment.Update", func(u *unit) error {
		cur, ok := r.s.records[rec.ID]
		if !ok || cur.CompanyID != rec.CompanyID {
			return apperror.NewNotFound("third_party_inventory", rec.ID.String())
		}
		if cur.Version != rec.Version {
			return apperror.NewConcurrentModification("third_party_inventory", rec.ID.String())
		}
		rec.Version++
		r.s.records[rec.ID] = copyRecord(rec)
		u.onRollback(func() { r.s.records[cur.ID] = cur })
		return nil
	})
}

func copyRecord(rec *consignment.Record) *consignment.Record {
	cp := *rec
	cp.Allocations = append([]costlayer.ConsumptionDetail(nil), rec.Allocations...)
	return &cp
}

func productTaken(rec *consignment.Record) error {
	return apperror.NewConflict("goods of this document are already with a partner").
		WithDetail("source_doc_id", rec.SourceDocID.String()).
		WithDetail("product_id", rec.ProductID.String())
}
