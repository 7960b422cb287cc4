package document_repo

import (
	"context"

	"costledger/internal/core/id"
	"costledger/internal/domain/documents/bill"
	"costledger/internal/infrastructure/storage/postgres"
)

// BillRepo implements bill.Repository.
type BillRepo struct {
	*baseDocumentRepo[bill.Bill, bill.Line]
}

var _ bill.Repository = (*BillRepo)(nil)

func NewBillRepo(txm *postgres.TxManager) *BillRepo {
	return &BillRepo{
		baseDocumentRepo: newBaseDocumentRepo[bill.Bill, bill.Line](txm, "bill", "bills", "bill_lines"),
	}
}

func (r *BillRepo) GetByID(ctx context.Context, companyID, billID id.ID) (*bill.Bill, error) {
	b, err := r.get(ctx, companyID, billID)
	if err != nil {
		return nil, err
	}
	if b.Lines, err = r.lines(ctx, billID); err != nil {
		return nil, err
	}
	return b, nil
}
