package memory

import (
	"context"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/accounts"
	"costledger/internal/domain/documents/bill"
	"costledger/internal/domain/documents/invoice"
	"costledger/internal/domain/documents/write_off"
)

// Source documents and the chart of accounts are authored outside the
// posting core; the Put methods stand in for those authors.

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct{ s *Store }

// BillRepo implements bill.Repository.
type BillRepo struct{ s *Store }

// WriteOffRepo implements write_off.Repository.
type WriteOffRepo struct{ s *Store }

// AccountRepo implements accounts.Repository.
type AccountRepo struct{ s *Store }

func (s *Store) Invoices() *InvoiceRepo   { return &InvoiceRepo{s: s} }
func (s *Store) Bills() *BillRepo         { return &BillRepo{s: s} }
func (s *Store) WriteOffs() *WriteOffRepo { return &WriteOffRepo{s: s} }
func (s *Store) Accounts() *AccountRepo   { return &AccountRepo{s: s} }

var (
	_ invoice.Repository   = (*InvoiceRepo)(nil)
	_ bill.Repository      = (*BillRepo)(nil)
	_ write_off.Repository = (*WriteOffRepo)(nil)
	_ accounts.Repository  = (*AccountRepo)(nil)
)

// Put stores or replaces an invoice.
func (r *InvoiceRepo) Put(inv *invoice.Invoice) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *inv
	cp.Lines = append([]invoice.Line(nil), inv.Lines...)
	r.s.invoices[inv.ID] = &cp
}

func (r *InvoiceRepo) GetByID(ctx context.Context, companyID, invoiceID id.ID) (*invoice.Invoice, error) {
	var out *invoice.Invoice
	err := r.s.do(ctx, "invoice.GetByID", func(*unit) error {
		inv, ok := r.s.invoices[invoiceID]
		if !ok || !inv.BelongsTo(companyID) {
			return apperror.NewNotFound("invoice", invoiceID.String())
		}
		cp := *inv
		cp.Lines = append([]invoice.Line(nil), inv.Lines...)
		out = &cp
		return nil
	})
	return out, err
}

// Lock is a fault point only; units of the store are already serialized.
func (r *InvoiceRepo) Lock(ctx context.Context, _, _ id.ID) error {
	return r.s.do(ctx, "invoice.Lock", func(*unit) error { return nil })
}

// Put stores or replaces a bill.
func (r *BillRepo) Put(b *bill.Bill) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *b
	cp.Lines = append([]bill.Line(nil), b.Lines...)
	r.s.bills[b.ID] = &cp
}

func (r *BillRepo) GetByID(ctx context.Context, companyID, billID id.ID) (*bill.Bill, error) {
	var out *bill.Bill
	err := r.s.do(ctx, "bill.GetByID", func(*unit) error {
		b, ok := r.s.bills[billID]
		if !ok || !b.BelongsTo(companyID) {
			return apperror.NewNotFound("bill", billID.String())
		}
		cp := *b
		cp.Lines = append([]bill.Line(nil), b.Lines...)
		out = &cp
		return nil
	})
	return out, err
}

// Put stores or replaces a write-off.
func (r *WriteOffRepo) Put(w *write_off.WriteOff) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *w
	cp.Lines = append([]write_off.Line(nil), w.Lines...)
	r.s.writeOffs[w.ID] = &cp
}

func (r *WriteOffRepo) GetByID(ctx context.Context, companyID, writeOffID id.ID) (*write_off.WriteOff, error) {
	var out *write_off.WriteOff
	err := r.s.do(ctx, "write_off.GetByID", func(*unit) error {
		w, ok := r.s.writeOffs[writeOffID]
		if !ok || !w.BelongsTo(companyID) {
			return apperror.NewNotFound("write_off", writeOffID.String())
		}
		cp := *w
		cp.Lines = append([]write_off.Line(nil), w.Lines...)
		out = &cp
		return nil
	})
	return out, err
}

// Put stores or replaces an account.
func (r *AccountRepo) Put(acc accounts.Account) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.accounts[acc.ID] = acc
}

func (r *AccountRepo) GetByID(ctx context.Context, companyID, accountID id.ID) (*accounts.Account, error) {
	var out *accounts.Account
	err := r.s.do(ctx, "accounts.GetByID", func(*unit) error {
		acc, ok := r.s.accounts[accountID]
		if !ok || acc.CompanyID != companyID {
			return apperror.NewNotFound("account", accountID.String())
		}
		out = &acc
		return nil
	})
	return out, err
}

func (r *AccountRepo) ListActive(ctx context.Context, companyID id.ID) ([]accounts.Account, error) {
	var out []accounts.Account
	err := r.s.do(ctx, "accounts.ListActive", func(*unit) error {
		for _, acc := range r.s.accounts {
			if acc.CompanyID == companyID && acc.IsActive {
				out = append(out, acc)
			}
		}
		return nil
	})
	return out, err
}
