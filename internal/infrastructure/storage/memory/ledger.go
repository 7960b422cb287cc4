package memory

import (
	"context"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/ledger"
)

// LedgerRepo implements ledger.Repository. The active triple is unique the
// same way the partial unique index enforces it in Postgres.
type LedgerRepo struct {
	s *Store
}

// Ledger returns the journal repository.
func (s *Store) Ledger() *LedgerRepo {
	return &LedgerRepo{s: s}
}

var _ ledger.Repository = (*LedgerRepo)(nil)

func (r *LedgerRepo) FindActiveID(ctx context.Context, companyID id.ID, refType ledger.ReferenceType, refID id.ID) (id.ID, error) {
	var found id.ID
	err := r.s.do(ctx, "ledger.FindActiveID", func(*unit) error {
		if e := r.active(companyID, refType, refID); e != nil {
			found = e.ID
		}
		return nil
	})
	return found, err
}

func (r *LedgerRepo) GetActive(ctx context.Context, companyID id.ID, refType ledger.ReferenceType, refID id.ID) (*ledger.Entry, error) {
	var out *ledger.Entry
	err := r.s.do(ctx, "ledger.GetActive", func(*unit) error {
		e := r.active(companyID, refType, refID)
		if e == nil {
			return apperror.NewNotFound("journal_entry", refID.String()).
				WithDetail("reference_type", string(refType))
		}
		out = copyEntry(e)
		return nil
	})
	return out, err
}

func (r *LedgerRepo) GetByID(ctx context.Context, companyID, entryID id.ID) (*ledger.Entry, error) {
	var out *ledger.Entry
	err := r.s.do(ctx, "ledger.GetByID", func(*unit) error {
		e, ok := r.s.entries[entryID]
		if !ok || e.CompanyID != companyID {
			return apperror.NewNotFound("journal_entry", entryID.String())
		}
		out = copyEntry(e)
		return nil
	})
	return out, err
}

func (r *LedgerRepo) Insert(ctx context.Context, entry *ledger.Entry) error {
	return r.s.do(ctx, "ledger.Insert", func(u *unit) error {
		if r.active(entry.CompanyID, entry.ReferenceType, entry.ReferenceID) != nil {
			return apperror.NewDuplicatePosting(entry.CompanyID.String(), string(entry.ReferenceType), entry.ReferenceID.String())
		}
		cp := copyEntry(entry)
		r.s.entries[cp.ID] = cp
		n := len(r.s.entryOrder)
		r.s.entryOrder = append(r.s.entryOrder, cp.ID)
		u.onRollback(func() {
			delete(r.s.entries, cp.ID)
			r.s.entryOrder = r.s.entryOrder[:n]
		})
		return nil
	})
}

func (r *LedgerRepo) SoftDelete(ctx context.Context, companyID, entryID id.ID, reason string, at time.Time) error {
	return r.s.do(ctx, "ledger.SoftDelete", func(u *unit) error {
		e, ok := r.s.entries[entryID]
		if !ok || e.CompanyID != companyID || e.IsDeleted {
			return apperror.NewNotFound("journal_entry", entryID.String())
		}
		e.IsDeleted = true
		e.DeletedAt = &at
		e.DeletionReason = reason
		u.onRollback(func() {
			e.IsDeleted = false
			e.DeletedAt = nil
			e.DeletionReason = ""
		})
		return nil
	})
}

func (r *LedgerRepo) ListActiveStandard(ctx context.Context, companyID id.ID) ([]ledger.Entry, error) {
	return r.list(ctx, "ledger.ListActiveStandard", func(e *ledger.Entry) bool {
		return e.CompanyID == companyID && !e.IsDeleted && e.Kind == ledger.KindStandard
	})
}

func (r *LedgerRepo) ListAdjustments(ctx context.Context, companyID, entryID id.ID) ([]ledger.Entry, error) {
	return r.list(ctx, "ledger.ListAdjustments", func(e *ledger.Entry) bool {
		return e.CompanyID == companyID && !e.IsDeleted && e.Kind == ledger.KindBalancingAdjustment && e.AdjustsEntryID == entryID
	})
}

// Entries returns every entry of a company, deleted ones included, in
// insertion order.
func (r *LedgerRepo) Entries(companyID id.ID) []ledger.Entry {
	out, _ := r.list(context.Background(), "", func(e *ledger.Entry) bool { return e.CompanyID == companyID })
	return out
}

func (r *LedgerRepo) list(ctx context.Context, op string, keep func(*ledger.Entry) bool) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := r.s.do(ctx, op, func(*unit) error {
		for _, entryID := range r.s.entryOrder {
			if e := r.s.entries[entryID]; keep(e) {
				out = append(out, *copyEntry(e))
			}
		}
		return nil
	})
	return out, err
}

// active must be called with the lock held.
func (r *LedgerRepo) active(companyID id.ID, refType ledger.ReferenceType, refID id.ID) *ledger.Entry {
	for _, e := range r.s.entries {
		if !e.IsDeleted && e.CompanyID == companyID && e.ReferenceType == refType && e.ReferenceID == refID {
			return e
		}
	}
	return nil
}

func copyEntry(e *ledger.Entry) *ledger.Entry {
	cp := *e
	cp.Lines = append([]ledger.Line(nil), e.Lines...)
	if e.DeletedAt != nil {
		at := *e.DeletedAt
		cp.DeletedAt = &at
	}
	return &cp
}
