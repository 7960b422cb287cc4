// Package document_repo reads the source documents the posting core is
// triggered with. The documents are authored elsewhere; nothing here writes.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/infrastructure/storage/postgres"
)

// baseDocumentRepo loads a document header and its lines.
type baseDocumentRepo[T any, L any] struct {
	txm        *postgres.TxManager
	builder    squirrel.StatementBuilderType
	entity     string
	table      string
	linesTable string
	headCols   []string
	lineCols   []string
}

func newBaseDocumentRepo[T any, L any](txm *postgres.TxManager, entity, table, linesTable string) *baseDocumentRepo[T, L] {
	return &baseDocumentRepo[T, L]{
		txm:        txm,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		entity:     entity,
		table:      table,
		linesTable: linesTable,
		headCols:   postgres.Columns[T](),
		lineCols:   postgres.Columns[L](),
	}
}

// get loads the header of a company's document.
func (r *baseDocumentRepo[T, L]) get(ctx context.Context, companyID, docID id.ID) (*T, error) {
	sql, args, err := r.builder.
		Select(r.headCols...).
		From(r.table).
		Where(squirrel.Eq{"id": docID, "company_id": companyID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	doc := new(T)
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(r.entity, docID.String())
		}
		return nil, fmt.Errorf("get %s: %w", r.entity, err)
	}
	return doc, nil
}

// lines loads the lines of a document in line order.
func (r *baseDocumentRepo[T, L]) lines(ctx context.Context, docID id.ID) ([]L, error) {
	sql, args, err := r.builder.
		Select(r.lineCols...).
		From(r.linesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []L
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("get %s lines: %w", r.entity, err)
	}
	return out, nil
}
