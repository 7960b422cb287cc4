package register_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/consignment"
	"costledger/internal/infrastructure/storage/postgres"
)

const thirdPartyTable = "third_party_inventory"

var recordColumns = []string{
	"id", "company_id", "partner_id", "product_id", "source_doc_id",
	"branch_id", "warehouse_id", "cost_center_id",
	"quantity", "cleared_quantity", "returned_quantity",
	"unit_cost", "cost_basis", "status", "allocations",
	"version", "created_at", "updated_at",
}

// recordRow carries the allocations as the raw JSONB column.
type recordRow struct {
	consignment.Record
	AllocationsJSON []byte `db:"allocations"`
}

// ConsignmentRepo implements consignment.Repository. Layer allocations of a
// record are kept as a JSONB array next to its quantities.
type ConsignmentRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewConsignmentRepo creates a third-party inventory repository.
func NewConsignmentRepo(txm *postgres.TxManager) *ConsignmentRepo {
	return &ConsignmentRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ consignment.Repository = (*ConsignmentRepo)(nil)

func (r *ConsignmentRepo) Insert(ctx context.Context, rec *consignment.Record) error {
	allocations, err := json.Marshal(rec.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}

	sql, args, err := r.builder.
		Insert(thirdPartyTable).
		Columns(recordColumns...).
		Values(
			rec.ID, rec.CompanyID, rec.PartnerID, rec.ProductID, rec.SourceDocID,
			id.NullIfNil(rec.BranchID), id.NullIfNil(rec.WarehouseID), id.NullIfNil(rec.CostCenterID),
			rec.Quantity.Int64Scaled(), rec.ClearedQty.Int64Scaled(), rec.ReturnedQty.Int64Scaled(),
			rec.UnitCost, rec.CostBasis, string(rec.Status), allocations,
			rec.Version, rec.CreatedAt, rec.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, "uq_third_party_source_product") {
			return apperror.NewConflict("goods of this document are already with a partner").
				WithDetail("source_doc_id", rec.SourceDocID.String()).
				WithDetail("product_id", rec.ProductID.String())
		}
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewConflict("third-party record already exists").WithDetail("record_id", rec.ID.String())
		}
		if postgres.IsCheckViolation(err) {
			return apperror.NewInvalidState("third_party_inventory", "record violates quantity conservation").
				WithDetail("record_id", rec.ID.String())
		}
		return fmt.Errorf("insert third-party record: %w", err)
	}
	return nil
}

func (r *ConsignmentRepo) ListBySource(ctx context.Context, companyID, sourceDocID id.ID) ([]consignment.Record, error) {
	sql, args, err := r.builder.
		Select(recordColumns...).
		From(thirdPartyTable).
		Where(squirrel.Eq{"company_id": companyID, "source_doc_id": sourceDocID}).
		OrderBy("created_at", "id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []recordRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select third-party records: %w", err)
	}

	out := make([]consignment.Record, 0, len(rows))
	for _, row := range rows {
		rec := row.Record
		if len(row.AllocationsJSON) > 0 {
			if err := json.Unmarshal(row.AllocationsJSON, &rec.Allocations); err != nil {
				return nil, fmt.Errorf("unmarshal allocations of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *ConsignmentRepo) Update(ctx context.Context, rec *consignment.Record) error {
	allocations, err := json.Marshal(rec.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	now := time.Now().UTC()

	sql, args, err := r.builder.
		Update(thirdPartyTable).
		Set("cleared_quantity", rec.ClearedQty.Int64Scaled()).
		Set("returned_quantity", rec.ReturnedQty.Int64Scaled()).
		Set("status", string(rec.Status)).
		Set("allocations", allocations).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": rec.ID, "company_id": rec.CompanyID, "version": rec.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if postgres.IsCheckViolation(err) {
			return apperror.NewInvalidState("third_party_inventory", "record violates quantity conservation").
				WithDetail("record_id", rec.ID.String())
		}
		return fmt.Errorf("update third-party record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("third_party_inventory", rec.ID.String())
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}
