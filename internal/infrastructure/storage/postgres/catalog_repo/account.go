// Package catalog_repo reads reference data the posting core depends on:
// the chart of accounts.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/accounts"
	"costledger/internal/infrastructure/storage/postgres"
)

const accountsTable = "accounts"

// AccountRepo implements accounts.Repository.
type AccountRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	cols    []string
}

// NewAccountRepo creates a chart-of-accounts repository.
func NewAccountRepo(txm *postgres.TxManager) *AccountRepo {
	return &AccountRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		cols:    postgres.Columns[accounts.Account](),
	}
}

var _ accounts.Repository = (*AccountRepo)(nil)

func (r *AccountRepo) GetByID(ctx context.Context, companyID, accountID id.ID) (*accounts.Account, error) {
	sql, args, err := r.builder.
		Select(r.cols...).
		From(accountsTable).
		Where(squirrel.Eq{"id": accountID, "company_id": companyID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var acc accounts.Account
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &acc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("account", accountID.String())
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

// ListActive returns active accounts ordered by code, so role resolution
// picks the same account on every call.
func (r *AccountRepo) ListActive(ctx context.Context, companyID id.ID) ([]accounts.Account, error) {
	sql, args, err := r.builder.
		Select(r.cols...).
		From(accountsTable).
		Where(squirrel.Eq{"company_id": companyID, "is_active": true}).
		OrderBy("code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []accounts.Account
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}
