package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/infrastructure/storage/postgres"
)

const (
	costLayersTable  = "cost_layers"
	cogsTable        = "cogs_transactions"
	cogsDetailsTable = "cogs_transaction_details"
)

var layerColumns = []string{
	"id", "company_id", "product_id",
	"branch_id", "warehouse_id", "cost_center_id",
	"source_type", "source_id",
	"received_qty", "remaining_qty", "unit_cost",
	"received_at", "sequence", "created_at",
}

var cogsColumns = []string{
	"id", "company_id", "source_type", "source_id", "product_id",
	"branch_id", "warehouse_id", "cost_center_id",
	"quantity", "total_cost", "reversal_of", "created_at", "created_by",
}

// CostLayerRepo implements costlayer.Repository.
//
// Consumers of one scope are serialized by a transaction-scoped advisory
// lock; eligible layers are additionally read FOR UPDATE and decremented
// with a compare-and-set on remaining_qty.
type CostLayerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewCostLayerRepo creates a cost layer repository.
func NewCostLayerRepo(txm *postgres.TxManager) *CostLayerRepo {
	return &CostLayerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ costlayer.Repository = (*CostLayerRepo)(nil)

func (r *CostLayerRepo) LockScope(ctx context.Context, scope costlayer.Scope) error {
	_, err := r.txm.GetQuerier(ctx).Exec(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", scope.Key())
	if err != nil {
		return fmt.Errorf("lock scope %s: %w", scope.Key(), err)
	}
	return nil
}

// scopeWhere matches a scope; unset location dimensions match NULL only.
func scopeWhere(scope costlayer.Scope) squirrel.And {
	return squirrel.And{
		squirrel.Eq{"company_id": scope.CompanyID, "product_id": scope.ProductID},
		locationWhere(scope.Location),
	}
}

func locationWhere(loc entity.Location) squirrel.And {
	return squirrel.And{
		squirrel.Expr("branch_id IS NOT DISTINCT FROM ?", id.NullIfNil(loc.BranchID)),
		squirrel.Expr("warehouse_id IS NOT DISTINCT FROM ?", id.NullIfNil(loc.WarehouseID)),
		squirrel.Expr("cost_center_id IS NOT DISTINCT FROM ?", id.NullIfNil(loc.CostCenterID)),
	}
}

func (r *CostLayerRepo) ListEligible(ctx context.Context, scope costlayer.Scope, asOf time.Time) ([]costlayer.Layer, error) {
	sql, args, err := r.builder.
		Select(layerColumns...).
		From(costLayersTable).
		Where(scopeWhere(scope)).
		Where(squirrel.Gt{"remaining_qty": int64(0)}).
		Where(squirrel.LtOrEq{"received_at": asOf}).
		OrderBy("received_at", "sequence").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var layers []costlayer.Layer
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &layers, sql, args...); err != nil {
		return nil, fmt.Errorf("select eligible layers: %w", err)
	}
	return layers, nil
}

func (r *CostLayerRepo) Insert(ctx context.Context, layer *costlayer.Layer) error {
	sql, args, err := r.builder.
		Insert(costLayersTable).
		Columns(
			"id", "company_id", "product_id",
			"branch_id", "warehouse_id", "cost_center_id",
			"source_type", "source_id",
			"received_qty", "remaining_qty", "unit_cost",
			"received_at", "created_at",
		).
		Values(
			layer.ID, layer.CompanyID, layer.ProductID,
			id.NullIfNil(layer.BranchID), id.NullIfNil(layer.WarehouseID), id.NullIfNil(layer.CostCenterID),
			string(layer.SourceType), layer.SourceID,
			layer.ReceivedQty.Int64Scaled(), layer.RemainingQty.Int64Scaled(), layer.UnitCost,
			layer.ReceivedAt, layer.CreatedAt,
		).
		Suffix("RETURNING sequence").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&layer.Sequence); err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewConflict("cost layer already exists").WithDetail("layer_id", layer.ID.String())
		}
		if postgres.IsCheckViolation(err) {
			return apperror.NewValidation("cost layer violates a storage constraint").WithDetail("layer_id", layer.ID.String())
		}
		return fmt.Errorf("insert cost layer: %w", err)
	}
	return nil
}

func (r *CostLayerRepo) Decrement(ctx context.Context, companyID, layerID id.ID, expected, qty types.Quantity) error {
	sql, args, err := r.builder.
		Update(costLayersTable).
		Set("remaining_qty", squirrel.Expr("remaining_qty - ?", qty.Int64Scaled())).
		Where(squirrel.Eq{
			"id":            layerID,
			"company_id":    companyID,
			"remaining_qty": expected.Int64Scaled(),
		}).
		Where(squirrel.GtOrEq{"remaining_qty": qty.Int64Scaled()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("decrement layer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("cost_layer", layerID.String())
	}
	return nil
}

func (r *CostLayerRepo) Increment(ctx context.Context, companyID, layerID id.ID, qty types.Quantity) error {
	var remaining, received int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx,
		`SELECT remaining_qty, received_qty FROM cost_layers
		 WHERE id = $1 AND company_id = $2 FOR UPDATE`,
		layerID, companyID,
	).Scan(&remaining, &received)
	if err != nil {
		if postgres.IsNoRows(err) {
			return apperror.NewNotFound("cost_layer", layerID.String())
		}
		return fmt.Errorf("lock layer: %w", err)
	}
	if remaining+qty.Int64Scaled() > received {
		return apperror.NewInvalidState("cost_layer", "restoring would exceed the received quantity").
			WithDetail("layer_id", layerID.String()).
			WithDetail("remaining", types.NewQuantityFromInt64Scaled(remaining).String()).
			WithDetail("received", types.NewQuantityFromInt64Scaled(received).String()).
			WithDetail("restore", qty.String())
	}

	_, err = r.txm.GetQuerier(ctx).Exec(ctx,
		"UPDATE cost_layers SET remaining_qty = remaining_qty + $1 WHERE id = $2",
		qty.Int64Scaled(), layerID)
	if err != nil {
		return fmt.Errorf("increment layer: %w", err)
	}
	return nil
}

func (r *CostLayerRepo) GetByIDs(ctx context.Context, companyID id.ID, ids []id.ID) ([]costlayer.Layer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql, args, err := r.builder.
		Select(layerColumns...).
		From(costLayersTable).
		Where(squirrel.Eq{"company_id": companyID, "id": ids}).
		OrderBy("received_at", "sequence").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var layers []costlayer.Layer
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &layers, sql, args...); err != nil {
		return nil, fmt.Errorf("select layers: %w", err)
	}
	return layers, nil
}

func (r *CostLayerRepo) ListBySource(ctx context.Context, companyID id.ID, sourceType costlayer.SourceType, sourceID id.ID) ([]costlayer.Layer, error) {
	sql, args, err := r.builder.
		Select(layerColumns...).
		From(costLayersTable).
		Where(squirrel.Eq{
			"company_id":  companyID,
			"source_type": string(sourceType),
			"source_id":   sourceID,
		}).
		OrderBy("sequence").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var layers []costlayer.Layer
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &layers, sql, args...); err != nil {
		return nil, fmt.Errorf("select layers by source: %w", err)
	}
	return layers, nil
}

func (r *CostLayerRepo) SumAvailable(ctx context.Context, scope costlayer.Scope, asOf time.Time) (types.Quantity, error) {
	sql, args, err := r.builder.
		Select("COALESCE(SUM(remaining_qty), 0)::bigint").
		From(costLayersTable).
		Where(scopeWhere(scope)).
		Where(squirrel.LtOrEq{"received_at": asOf}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var sum int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum available: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(sum), nil
}

// InsertCOGS writes the transaction row and its details in one batch.
func (r *CostLayerRepo) InsertCOGS(ctx context.Context, cogs *costlayer.COGSTransaction) error {
	sql, args, err := r.builder.
		Insert(cogsTable).
		Columns(cogsColumns...).
		Values(
			cogs.ID, cogs.CompanyID, cogs.SourceType, cogs.SourceID, cogs.ProductID,
			id.NullIfNil(cogs.BranchID), id.NullIfNil(cogs.WarehouseID), id.NullIfNil(cogs.CostCenterID),
			cogs.Quantity.Int64Scaled(), cogs.TotalCost, id.NullIfNil(cogs.ReversalOf),
			cogs.CreatedAt, cogs.CreatedBy,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	queries := []postgres.BatchQuery{{SQL: sql, Args: args, Expect: 1}}
	for i, d := range cogs.Details {
		dsql, dargs, err := r.builder.
			Insert(cogsDetailsTable).
			Columns("cogs_id", "detail_no", "layer_id", "quantity", "unit_cost", "cost").
			Values(cogs.ID, i+1, d.LayerID, d.Quantity.Int64Scaled(), d.UnitCost, d.Cost).
			ToSql()
		if err != nil {
			return fmt.Errorf("build detail insert: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: dsql, Args: dargs, Expect: 1})
	}

	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := postgres.ExecBatch(ctx, r.txm.GetQuerier(ctx), queries); err != nil {
			return fmt.Errorf("insert cogs: %w", err)
		}
		return nil
	})
}

func (r *CostLayerRepo) ListActiveCOGS(ctx context.Context, companyID id.ID, sourceType string, sourceID id.ID) ([]costlayer.COGSTransaction, error) {
	sql, args, err := r.builder.
		Select(cogsColumns...).
		From(cogsTable + " c").
		Where(squirrel.Eq{
			"c.company_id":  companyID,
			"c.source_type": sourceType,
			"c.source_id":   sourceID,
			"c.reversal_of": nil,
		}).
		Where("NOT EXISTS (SELECT 1 FROM cogs_transactions rv WHERE rv.reversal_of = c.id)").
		OrderBy("c.created_at", "c.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []costlayer.COGSTransaction
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select cogs: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]id.ID, len(out))
	index := make(map[id.ID]int, len(out))
	for i, c := range out {
		ids[i] = c.ID
		index[c.ID] = i
	}

	var details []struct {
		CogsID id.ID `db:"cogs_id"`
		costlayer.ConsumptionDetail
	}
	err = pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &details,
		`SELECT cogs_id, layer_id, quantity, unit_cost, cost
		 FROM cogs_transaction_details WHERE cogs_id = ANY($1) ORDER BY cogs_id, detail_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("select cogs details: %w", err)
	}
	for _, d := range details {
		i := index[d.CogsID]
		out[i].Details = append(out[i].Details, d.ConsumptionDetail)
	}
	return out, nil
}

func (r *CostLayerRepo) Valuation(ctx context.Context, filter costlayer.ValuationFilter) ([]costlayer.ValuationRow, error) {
	q := r.builder.
		Select(
			"product_id", "branch_id", "warehouse_id", "cost_center_id",
			"SUM(remaining_qty)::bigint AS quantity",
			fmt.Sprintf("ROUND(SUM(remaining_qty::numeric * unit_cost) / %d, %d) AS value",
				types.QuantityScale, types.ReportingDigits),
		).
		From(costLayersTable).
		Where(squirrel.Eq{"company_id": filter.CompanyID}).
		Where(squirrel.Gt{"remaining_qty": int64(0)}).
		GroupBy("product_id", "branch_id", "warehouse_id", "cost_center_id").
		OrderBy("product_id", "branch_id", "warehouse_id", "cost_center_id")
	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []costlayer.ValuationRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select valuation: %w", err)
	}
	return rows, nil
}
