package consignment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/tx"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/domain/registers/stock"
	"costledger/pkg/logger"
)

// Recorder types written to the stock register.
const (
	RecorderTransferOut = "partner_transfer"
	RecorderClearing    = "partner_clearing"
	RecorderReturn      = "partner_return"
)

// Service is the third-party custody tracker.
type Service struct {
	repo   Repository
	layers *costlayer.Service
	stock  *stock.Service
	txm    tx.Manager
	now    func() time.Time
}

// NewService creates the tracker.
func NewService(repo Repository, layers *costlayer.Service, stockSvc *stock.Service, txm tx.Manager) *Service {
	return &Service{
		repo:   repo,
		layers: layers,
		stock:  stockSvc,
		txm:    txm,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TransferItem is one product leaving custody.
type TransferItem struct {
	ProductID id.ID
	Quantity  types.Quantity
}

// TransferRequest moves goods of a source document to a partner.
type TransferRequest struct {
	CompanyID   id.ID
	PartnerID   id.ID
	SourceDocID id.ID
	Location    entity.Location
	Date        time.Time
	Items       []TransferItem
}

// TransferOut takes the goods out of the FIFO layers at their cost and parks
// them with the partner. Nothing is posted to the ledger.
func (s *Service) TransferOut(ctx context.Context, req TransferRequest) ([]Record, error) {
	if id.IsNil(req.CompanyID) || id.IsNil(req.PartnerID) || id.IsNil(req.SourceDocID) {
		return nil, apperror.NewValidation("company, partner and source document are required")
	}
	if len(req.Items) == 0 {
		return nil, apperror.NewValidation("nothing to transfer").WithDetail("field", "items")
	}

	var records []Record
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.ListBySource(ctx, req.CompanyID, req.SourceDocID)
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
		if len(existing) > 0 {
			return apperror.NewConflict("goods of this document are already with a partner").
				WithDetail("source_doc_id", req.SourceDocID.String())
		}

		movements := make([]entity.StockMovement, 0, 2*len(req.Items))
		for _, item := range req.Items {
			consumption, err := s.layers.Consume(ctx, costlayer.ConsumeRequest{
				Scope: costlayer.Scope{
					CompanyID: req.CompanyID,
					ProductID: item.ProductID,
					Location:  req.Location,
				},
				Quantity: item.Quantity,
				AsOf:     req.Date,
			})
			if err != nil {
				return err
			}

			now := s.now()
			rec := Record{
				ID:          id.New(),
				CompanyID:   req.CompanyID,
				PartnerID:   req.PartnerID,
				ProductID:   item.ProductID,
				SourceDocID: req.SourceDocID,
				Location:    req.Location,
				Quantity:    item.Quantity,
				UnitCost:    consumption.TotalCost.Div(item.Quantity.Decimal()).Round(types.UnitCostDigits),
				CostBasis:   consumption.TotalCost,
				Status:      StatusOpen,
				Allocations: consumption.Details,
				Version:     1,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := rec.CheckConservation(ctx); err != nil {
				return err
			}
			if err := s.repo.Insert(ctx, &rec); err != nil {
				return fmt.Errorf("insert third-party record: %w", err)
			}
			records = append(records, rec)

			movements = append(movements, s.custodyMoves(rec, RecorderTransferOut, req.Date, item.Quantity, true)...)
		}
		return s.stock.RecordMovements(ctx, movements)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "goods transferred to partner",
		"company_id", req.CompanyID,
		"partner_id", req.PartnerID,
		"source_doc_id", req.SourceDocID,
		"records", len(records),
	)
	return records, nil
}

// ClearRequest confirms payment for a share of what the partner holds.
type ClearRequest struct {
	CompanyID   id.ID
	SourceDocID id.ID
	// PaidRatio is in (0, 1]; it applies to what is still with the partner.
	PaidRatio decimal.Decimal
	// Quantities optionally asks for explicit quantities per product
	// instead of the ratio. Amounts above availability are clipped.
	Quantities map[id.ID]types.Quantity
	Date       time.Time
}

// ClearResult reports what was cleared for one record.
type ClearResult struct {
	RecordID  id.ID `json:"recordId"`
	ProductID id.ID `json:"productId"`
	PartnerID id.ID `json:"partnerId"`

	// ClearedBefore is what earlier clearings of the record took.
	ClearedBefore types.Quantity `json:"clearedBefore"`
	Requested     types.Quantity `json:"requested"`
	Cleared       types.Quantity `json:"cleared"`
	Clipped       types.Quantity `json:"clipped"`

	Cost    types.Money                   `json:"cost"`
	Details []costlayer.ConsumptionDetail `json:"details"`
	Status  Status                        `json:"status"`
}

// Clear marks a share of every open record as sold. Cost of the cleared
// units is the exact FIFO cost of the oldest units still with the partner.
func (s *Service) Clear(ctx context.Context, req ClearRequest) ([]ClearResult, error) {
	if req.Quantities == nil && (!req.PaidRatio.IsPositive() || req.PaidRatio.GreaterThan(decimal.NewFromInt(1))) {
		return nil, apperror.NewValidation("paid ratio must be in (0, 1]").
			WithDetail("paid_ratio", req.PaidRatio.String())
	}

	if req.Quantities != nil && len(req.Quantities) == 0 {
		return nil, apperror.NewValidation("quantities are empty").WithDetail("field", "quantities")
	}
	for productID, q := range req.Quantities {
		if !q.IsPositive() {
			return nil, apperror.NewValidation("quantity must be positive").
				WithDetail("product_id", productID.String()).
				WithDetail("quantity", q.String())
		}
	}

	var results []ClearResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		records, err := s.repo.ListBySource(ctx, req.CompanyID, req.SourceDocID)
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
		if len(records) == 0 {
			return apperror.NewNotFound("third_party_inventory", req.SourceDocID.String())
		}

		var movements []entity.StockMovement
		for i := range records {
			rec := &records[i]
			if rec.Status != StatusOpen {
				continue
			}

			available := rec.WithPartner()
			requested := types.QuantityFromDecimal(available.Decimal().Mul(req.PaidRatio))
			if req.Quantities != nil {
				q, ok := req.Quantities[rec.ProductID]
				if !ok {
					continue
				}
				requested = q
			}
			cleared := types.MinQuantity(requested, available)
			if cleared < 0 {
				cleared = 0
			}

			taken, rest := costlayer.SplitFront(rec.Allocations, cleared)
			_, cost := costlayer.SumDetails(taken)

			before := rec.ClearedQty
			rec.ClearedQty += cleared
			rec.Allocations = rest
			rec.refreshStatus()
			rec.UpdatedAt = s.now()
			if err := rec.CheckConservation(ctx); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, rec); err != nil {
				return err
			}

			res := ClearResult{
				RecordID:      rec.ID,
				ProductID:     rec.ProductID,
				PartnerID:     rec.PartnerID,
				ClearedBefore: before,
				Requested:     requested,
				Cleared:       cleared,
				Clipped:       requested - cleared,
				Cost:          cost,
				Details:       taken,
				Status:        rec.Status,
			}
			if res.Clipped.IsPositive() {
				logger.Warn(ctx, "partner clearing clipped to available quantity",
					"record_id", rec.ID,
					"requested", requested.String(),
					"cleared", cleared.String(),
				)
			}
			results = append(results, res)

			if cleared.IsPositive() {
				// Sold goods leave partner custody for good.
				m := entity.NewStockMovement(rec.CompanyID, req.SourceDocID, RecorderClearing, s.dateOr(req.Date),
					entity.RecordTypeExpense, rec.Location, rec.ProductID, cleared)
				m.Custody = entity.CustodyPartner
				m.PartnerID = rec.PartnerID
				movements = append(movements, m)
			}
		}
		return s.stock.RecordMovements(ctx, movements)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ReturnRequest brings goods of a product back from the partner.
type ReturnRequest struct {
	CompanyID   id.ID
	SourceDocID id.ID
	ProductID   id.ID
	Quantity    types.Quantity
	Date        time.Time
}

// ReturnResult reports what came back.
type ReturnResult struct {
	RecordID  id.ID          `json:"recordId"`
	Requested types.Quantity `json:"requested"`
	Returned  types.Quantity `json:"returned"`
	Clipped   types.Quantity `json:"clipped"`
	Cost      types.Money    `json:"cost"`
	Status    Status         `json:"status"`
}

// Return moves goods back to own custody, capped at what the partner holds.
// The returned units go back to the exact layers they came from.
func (s *Service) Return(ctx context.Context, req ReturnRequest) (*ReturnResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", req.Quantity.String())
	}

	var result *ReturnResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		records, err := s.repo.ListBySource(ctx, req.CompanyID, req.SourceDocID)
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}

		var rec *Record
		for i := range records {
			if records[i].ProductID == req.ProductID {
				rec = &records[i]
				break
			}
		}
		if rec == nil {
			return apperror.NewNotFound("third_party_inventory", req.ProductID.String()).
				WithDetail("source_doc_id", req.SourceDocID.String())
		}

		returned := types.MinQuantity(req.Quantity, rec.WithPartner())
		taken, rest := costlayer.SplitBack(rec.Allocations, returned)
		_, cost := costlayer.SumDetails(taken)

		if err := s.layers.Reverse(ctx, rec.CompanyID, taken); err != nil {
			return err
		}

		rec.ReturnedQty += returned
		rec.Allocations = rest
		rec.refreshStatus()
		rec.UpdatedAt = s.now()
		if err := rec.CheckConservation(ctx); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, rec); err != nil {
			return err
		}

		result = &ReturnResult{
			RecordID:  rec.ID,
			Requested: req.Quantity,
			Returned:  returned,
			Clipped:   req.Quantity - returned,
			Cost:      cost,
			Status:    rec.Status,
		}
		if !returned.IsPositive() {
			return nil
		}
		return s.stock.RecordMovements(ctx, s.custodyMoves(*rec, RecorderReturn, req.Date, returned, false))
	})
	if err != nil {
		return nil, err
	}

	if result.Clipped.IsPositive() {
		logger.Warn(ctx, "partner return clipped to available quantity",
			"record_id", result.RecordID,
			"requested", result.Requested.String(),
			"returned", result.Returned.String(),
		)
	}
	return result, nil
}

// Records returns the third-party records of a source document.
func (s *Service) Records(ctx context.Context, companyID, sourceDocID id.ID) ([]Record, error) {
	return s.repo.ListBySource(ctx, companyID, sourceDocID)
}

// custodyMoves builds the pair of stock movements for a custody change.
// outbound moves own -> partner, otherwise partner -> own.
func (s *Service) custodyMoves(rec Record, recorderType string, date time.Time, qty types.Quantity, outbound bool) []entity.StockMovement {
	ownType, partnerType := entity.RecordTypeReceipt, entity.RecordTypeExpense
	if outbound {
		ownType, partnerType = entity.RecordTypeExpense, entity.RecordTypeReceipt
	}
	own := entity.NewStockMovement(rec.CompanyID, rec.SourceDocID, recorderType, s.dateOr(date), ownType, rec.Location, rec.ProductID, qty)
	partner := entity.NewStockMovement(rec.CompanyID, rec.SourceDocID, recorderType, s.dateOr(date), partnerType, rec.Location, rec.ProductID, qty)
	partner.Custody = entity.CustodyPartner
	partner.PartnerID = rec.PartnerID
	return []entity.StockMovement{own, partner}
}

func (s *Service) dateOr(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}
