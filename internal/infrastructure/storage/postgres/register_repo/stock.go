// Package register_repo provides PostgreSQL implementations of the
// registers the posting core writes: stock, cost layers and consignment.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/domain/registers/stock"
	"costledger/internal/infrastructure/storage/postgres"
)

const stockMovementsTable = "stock_movements"

var stockMovementColumns = []string{
	"line_id", "company_id", "recorder_id", "recorder_type",
	"period", "record_type",
	"branch_id", "warehouse_id", "cost_center_id",
	"custody", "partner_id", "product_id", "quantity", "created_at",
}

// StockRepo implements stock.Repository over an append-only movements table.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ stock.Repository = (*StockRepo)(nil)

// CreateMovements appends movements with COPY inside the posting unit.
func (r *StockRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, []any{
			m.LineID, m.CompanyID, m.RecorderID, m.RecorderType,
			m.Period, string(m.RecordType),
			id.NullIfNil(m.BranchID), id.NullIfNil(m.WarehouseID), id.NullIfNil(m.CostCenterID),
			string(m.Custody), id.NullIfNil(m.PartnerID), m.ProductID, m.Quantity.Int64Scaled(), m.CreatedAt,
		})
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return postgres.CopyRows(ctx, r.txm.GetQuerier(ctx), stockMovementsTable, stockMovementColumns, rows)
	})
}

// GetMovementsByRecorder retrieves the movements of one business event.
func (r *StockRepo) GetMovementsByRecorder(ctx context.Context, companyID id.ID, recorderType string, recorderID id.ID) ([]entity.StockMovement, error) {
	sql, args, err := r.builder.
		Select(stockMovementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{
			"company_id":    companyID,
			"recorder_type": recorderType,
			"recorder_id":   recorderID,
		}).
		OrderBy("created_at", "line_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// GetBalances sums signed quantities per location, custody and product.
func (r *StockRepo) GetBalances(ctx context.Context, companyID id.ID, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	q := r.builder.
		Select(
			"branch_id", "warehouse_id", "cost_center_id", "custody", "product_id",
			"SUM(CASE WHEN record_type = 'receipt' THEN quantity ELSE -quantity END)::bigint AS quantity",
		).
		From(stockMovementsTable).
		Where(squirrel.Eq{"company_id": companyID}).
		GroupBy("branch_id", "warehouse_id", "cost_center_id", "custody", "product_id")

	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}
	if filter.Custody != "" {
		q = q.Where(squirrel.Eq{"custody": string(filter.Custody)})
	}
	if filter.ExcludeZero {
		q = q.Having("SUM(CASE WHEN record_type = 'receipt' THEN quantity ELSE -quantity END) <> 0")
	}
	q = q.OrderBy("product_id", "custody", "branch_id", "warehouse_id", "cost_center_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.StockBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	return balances, nil
}
