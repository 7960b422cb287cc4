package document_repo

import (
	"context"
	"fmt"

	"costledger/internal/core/id"
	"costledger/internal/domain/documents/invoice"
	"costledger/internal/infrastructure/storage/postgres"
)

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	*baseDocumentRepo[invoice.Invoice, invoice.Line]
}

var _ invoice.Repository = (*InvoiceRepo)(nil)

func NewInvoiceRepo(txm *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{
		baseDocumentRepo: newBaseDocumentRepo[invoice.Invoice, invoice.Line](txm, "invoice", "invoices", "invoice_lines"),
	}
}

func (r *InvoiceRepo) GetByID(ctx context.Context, companyID, invoiceID id.ID) (*invoice.Invoice, error) {
	inv, err := r.get(ctx, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Lines, err = r.lines(ctx, invoiceID); err != nil {
		return nil, err
	}
	return inv, nil
}

// Lock takes a transaction-scoped advisory lock on the invoice. Zero rows
// read FOR UPDATE lock nothing, so the sale and partner paths of one invoice
// are serialized here instead.
func (r *InvoiceRepo) Lock(ctx context.Context, companyID, invoiceID id.ID) error {
	key := "invoice:" + companyID.String() + ":" + invoiceID.String()
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return fmt.Errorf("lock invoice %s: %w", invoiceID, err)
	}
	return nil
}
