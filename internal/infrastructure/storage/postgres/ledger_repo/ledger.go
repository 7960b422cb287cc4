// Package ledger_repo stores journal entries in PostgreSQL.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/ledger"
	"costledger/internal/infrastructure/storage/postgres"
)

const (
	entriesTable = "journal_entries"
	linesTable   = "journal_entry_lines"

	// activeReferenceConstraint is the partial unique index over
	// (company_id, reference_type, reference_id) WHERE NOT is_deleted.
	activeReferenceConstraint = "uq_journal_entries_active_reference"
)

var (
	entryColumns = postgres.Columns[ledger.Entry]()
	lineColumns  = postgres.Columns[ledger.Line]()
)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a journal repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ ledger.Repository = (*LedgerRepo)(nil)

func activeTriple(companyID id.ID, refType ledger.ReferenceType, refID id.ID) squirrel.Eq {
	return squirrel.Eq{
		"company_id":     companyID,
		"reference_type": string(refType),
		"reference_id":   refID,
		"is_deleted":     false,
	}
}

func (r *LedgerRepo) FindActiveID(ctx context.Context, companyID id.ID, refType ledger.ReferenceType, refID id.ID) (id.ID, error) {
	sql, args, err := r.builder.
		Select("id").
		From(entriesTable).
		Where(activeTriple(companyID, refType, refID)).
		Limit(1).
		ToSql()
	if err != nil {
		return id.Nil(), fmt.Errorf("build query: %w", err)
	}

	var entryID id.ID
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&entryID); err != nil {
		if postgres.IsNoRows(err) {
			return id.Nil(), nil
		}
		return id.Nil(), fmt.Errorf("find active entry: %w", err)
	}
	return entryID, nil
}

func (r *LedgerRepo) GetActive(ctx context.Context, companyID id.ID, refType ledger.ReferenceType, refID id.ID) (*ledger.Entry, error) {
	entries, err := r.selectEntries(ctx, activeTriple(companyID, refType, refID))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperror.NewNotFound("journal_entry", string(refType)+":"+refID.String())
	}
	return &entries[0], nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, companyID, entryID id.ID) (*ledger.Entry, error) {
	entries, err := r.selectEntries(ctx, squirrel.Eq{"company_id": companyID, "id": entryID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperror.NewNotFound("journal_entry", entryID.String())
	}
	return &entries[0], nil
}

// Insert writes the header and lines in one batch behind a savepoint, so a
// lost race on the active triple leaves the surrounding unit usable.
func (r *LedgerRepo) Insert(ctx context.Context, entry *ledger.Entry) error {
	head, args, err := r.builder.
		Insert(entriesTable).
		Columns(
			"id", "company_id", "number", "entry_date", "reference_type", "reference_id",
			"kind", "description", "branch_id", "warehouse_id", "cost_center_id",
			"adjusts_entry_id", "created_at", "created_by",
		).
		Values(
			entry.ID, entry.CompanyID, entry.Number, entry.Date, string(entry.ReferenceType), entry.ReferenceID,
			string(entry.Kind), entry.Description,
			id.NullIfNil(entry.BranchID), id.NullIfNil(entry.WarehouseID), id.NullIfNil(entry.CostCenterID),
			id.NullIfNil(entry.AdjustsEntryID), entry.CreatedAt, entry.CreatedBy,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	queries := []postgres.BatchQuery{{SQL: head, Args: args, Expect: 1}}
	for _, l := range entry.Lines {
		sql, largs, err := r.builder.
			Insert(linesTable).
			Columns(lineColumns...).
			Values(
				l.ID, entry.ID, l.LineNo, l.AccountID, l.Debit, l.Credit, l.Description,
				l.CurrencyCode, l.OriginalAmount, l.ExchangeRate,
			).
			ToSql()
		if err != nil {
			return fmt.Errorf("build line insert: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: largs, Expect: 1})
	}

	opts := postgres.DefaultTxOptions()
	opts.UseSavepoint = true
	err = r.txm.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		return postgres.ExecBatch(ctx, r.txm.GetQuerier(ctx), queries)
	})
	if err != nil {
		if postgres.IsUniqueViolation(err, activeReferenceConstraint) {
			return apperror.NewDuplicatePosting(entry.CompanyID.String(), string(entry.ReferenceType), entry.ReferenceID.String())
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (r *LedgerRepo) SoftDelete(ctx context.Context, companyID, entryID id.ID, reason string, at time.Time) error {
	sql, args, err := r.builder.
		Update(entriesTable).
		Set("is_deleted", true).
		Set("deleted_at", at).
		Set("deletion_reason", reason).
		Where(squirrel.Eq{"id": entryID, "company_id": companyID, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("soft delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("journal_entry", entryID.String())
	}
	return nil
}

func (r *LedgerRepo) ListActiveStandard(ctx context.Context, companyID id.ID) ([]ledger.Entry, error) {
	return r.selectEntries(ctx, squirrel.Eq{
		"company_id": companyID,
		"kind":       string(ledger.KindStandard),
		"is_deleted": false,
	})
}

func (r *LedgerRepo) ListAdjustments(ctx context.Context, companyID, entryID id.ID) ([]ledger.Entry, error) {
	return r.selectEntries(ctx, squirrel.Eq{
		"company_id":       companyID,
		"adjusts_entry_id": entryID,
		"kind":             string(ledger.KindBalancingAdjustment),
		"is_deleted":       false,
	})
}

// selectEntries loads matching entries with their lines in entry order.
func (r *LedgerRepo) selectEntries(ctx context.Context, where squirrel.Sqlizer) ([]ledger.Entry, error) {
	sql, args, err := r.builder.
		Select(entryColumns...).
		From(entriesTable).
		Where(where).
		OrderBy("entry_date", "created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := r.txm.GetQuerier(ctx)
	var entries []ledger.Entry
	if err := pgxscan.Select(ctx, q, &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select journal entries: %w", err)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	ids := make([]id.ID, len(entries))
	index := make(map[id.ID]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		index[e.ID] = i
	}

	lsql, largs, err := r.builder.
		Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"entry_id": ids}).
		OrderBy("entry_id", "line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines query: %w", err)
	}

	var lines []ledger.Line
	if err := pgxscan.Select(ctx, q, &lines, lsql, largs...); err != nil {
		return nil, fmt.Errorf("select journal lines: %w", err)
	}
	for _, l := range lines {
		i := index[l.EntryID]
		entries[i].Lines = append(entries[i].Lines, l)
	}
	return entries, nil
}
