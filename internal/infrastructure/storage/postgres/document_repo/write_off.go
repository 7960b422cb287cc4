package document_repo

import (
	"context"

	"costledger/internal/core/id"
	"costledger/internal/domain/documents/write_off"
	"costledger/internal/infrastructure/storage/postgres"
)

// WriteOffRepo implements write_off.Repository.
type WriteOffRepo struct {
	*baseDocumentRepo[write_off.WriteOff, write_off.Line]
}

var _ write_off.Repository = (*WriteOffRepo)(nil)

func NewWriteOffRepo(txm *postgres.TxManager) *WriteOffRepo {
	return &WriteOffRepo{
		baseDocumentRepo: newBaseDocumentRepo[write_off.WriteOff, write_off.Line](txm, "write_off", "write_offs", "write_off_lines"),
	}
}

func (r *WriteOffRepo) GetByID(ctx context.Context, companyID, writeOffID id.ID) (*write_off.WriteOff, error) {
	w, err := r.get(ctx, companyID, writeOffID)
	if err != nil {
		return nil, err
	}
	if w.Lines, err = r.lines(ctx, writeOffID); err != nil {
		return nil, err
	}
	return w, nil
}
