package costlayer

import (
	"context"
	"fmt"
	"time"

	"costledger/internal/core/apperror"
	appctx "costledger/internal/core/context"
	"costledger/internal/core/id"
	"costledger/internal/core/tx"
	"costledger/internal/core/types"
	"costledger/pkg/logger"
)

// Service is the cost layer store and FIFO consumption engine.
// Every mutating method runs in a unit; when the caller already holds
// one (the posting engine) the method joins it.
type Service struct {
	repo Repository
	txm  tx.Manager
	now  func() time.Time
}

// NewService creates a new cost layer service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{
		repo: repo,
		txm:  txm,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ReceiveRequest describes a new layer.
type ReceiveRequest struct {
	Scope
	Quantity   types.Quantity
	UnitCost   types.Money
	ReceivedAt time.Time
	SourceType SourceType
	SourceID   id.ID
}

// Receive creates a layer with remaining == received.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) (*Layer, error) {
	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	layer := &Layer{
		ID:           id.New(),
		CompanyID:    req.CompanyID,
		ProductID:    req.ProductID,
		Location:     req.Location,
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		ReceivedQty:  req.Quantity,
		RemainingQty: req.Quantity,
		UnitCost:     req.UnitCost.Round(types.UnitCostDigits),
		ReceivedAt:   receivedAt,
		CreatedAt:    s.now(),
	}
	if err := layer.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Insert(ctx, layer)
	})
	if err != nil {
		return nil, fmt.Errorf("insert cost layer: %w", err)
	}

	logger.Debug(ctx, "cost layer received",
		"company_id", layer.CompanyID,
		"product_id", layer.ProductID,
		"layer_id", layer.ID,
		"quantity", layer.ReceivedQty.String(),
		"unit_cost", layer.UnitCost.String(),
	)
	return layer, nil
}

// ConsumeRequest asks for quantity units of a scope as of a date.
type ConsumeRequest struct {
	Scope
	Quantity types.Quantity
	// AsOf excludes layers received later; zero means now.
	AsOf time.Time
}

// Consume takes quantity from the oldest eligible layers. Either the full
// quantity is taken or nothing changes.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (*Consumption, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", req.Quantity.String())
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}

	var result *Consumption
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockScope(ctx, req.Scope); err != nil {
			return fmt.Errorf("lock scope: %w", err)
		}

		layers, err := s.repo.ListEligible(ctx, req.Scope, asOf)
		if err != nil {
			return fmt.Errorf("list eligible layers: %w", err)
		}

		plan, err := planFIFO(req.Scope, layers, req.Quantity)
		if err != nil {
			return err
		}

		remaining := make(map[id.ID]types.Quantity, len(layers))
		for _, l := range layers {
			remaining[l.ID] = l.RemainingQty
		}
		for _, d := range plan.Details {
			if err := s.repo.Decrement(ctx, req.CompanyID, d.LayerID, remaining[d.LayerID], d.Quantity); err != nil {
				return err
			}
		}

		result = plan
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "fifo consumption",
		"company_id", req.CompanyID,
		"product_id", req.ProductID,
		"quantity", req.Quantity.String(),
		"layers", len(result.Details),
		"total_cost", result.TotalCost.String(),
	)
	return result, nil
}

// Reverse puts back exactly the quantities a consumption took from exactly
// the layers it took them from.
func (s *Service) Reverse(ctx context.Context, companyID id.ID, details []ConsumptionDetail) error {
	if len(details) == 0 {
		return nil
	}
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, d := range details {
			if !d.Quantity.IsPositive() {
				return apperror.NewValidation("reversal quantity must be positive").
					WithDetail("layer_id", d.LayerID.String())
			}
			if err := s.repo.Increment(ctx, companyID, d.LayerID, d.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// Available returns the quantity a consumption at asOf could take.
func (s *Service) Available(ctx context.Context, scope Scope, asOf time.Time) (types.Quantity, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.SumAvailable(ctx, scope, asOf)
}

// LayersBySource returns layers created by a business event.
func (s *Service) LayersBySource(ctx context.Context, companyID id.ID, sourceType SourceType, sourceID id.ID) ([]Layer, error) {
	return s.repo.ListBySource(ctx, companyID, sourceType, sourceID)
}

// RecordCOGS stores the cost recognized for a consumption.
func (s *Service) RecordCOGS(ctx context.Context, sourceType string, sourceID id.ID, c *Consumption) (*COGSTransaction, error) {
	cogs := &COGSTransaction{
		ID:         id.New(),
		CompanyID:  c.Scope.CompanyID,
		SourceType: sourceType,
		SourceID:   sourceID,
		ProductID:  c.Scope.ProductID,
		Location:   c.Scope.Location,
		Quantity:   c.Quantity,
		TotalCost:  c.TotalCost,
		Details:    c.Details,
		CreatedAt:  s.now(),
		CreatedBy:  appctx.GetUserID(ctx),
	}
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.InsertCOGS(ctx, cogs)
	})
	if err != nil {
		return nil, fmt.Errorf("insert cogs transaction: %w", err)
	}
	return cogs, nil
}

// ReverseCOGS cancels every active COGS transaction of a source: the layers
// get their units back and a negated transaction is linked to each original.
func (s *Service) ReverseCOGS(ctx context.Context, companyID id.ID, sourceType string, sourceID id.ID) ([]COGSTransaction, error) {
	var reversals []COGSTransaction
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		active, err := s.repo.ListActiveCOGS(ctx, companyID, sourceType, sourceID)
		if err != nil {
			return fmt.Errorf("list cogs: %w", err)
		}
		for _, orig := range active {
			if err := s.Reverse(ctx, companyID, orig.Details); err != nil {
				return err
			}
			rev := COGSTransaction{
				ID:         id.New(),
				CompanyID:  orig.CompanyID,
				SourceType: orig.SourceType,
				SourceID:   orig.SourceID,
				ProductID:  orig.ProductID,
				Location:   orig.Location,
				Quantity:   orig.Quantity.Neg(),
				TotalCost:  orig.TotalCost.Neg(),
				ReversalOf: orig.ID,
				Details:    orig.Details,
				CreatedAt:  s.now(),
				CreatedBy:  appctx.GetUserID(ctx),
			}
			if err := s.repo.InsertCOGS(ctx, &rev); err != nil {
				return fmt.Errorf("insert cogs reversal: %w", err)
			}
			reversals = append(reversals, rev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversals, nil
}

// ActiveCOGS returns the COGS transactions of a source that are not reversed.
func (s *Service) ActiveCOGS(ctx context.Context, companyID id.ID, sourceType string, sourceID id.ID) ([]COGSTransaction, error) {
	return s.repo.ListActiveCOGS(ctx, companyID, sourceType, sourceID)
}

// Valuation returns remaining inventory value per product and location.
func (s *Service) Valuation(ctx context.Context, filter ValuationFilter) ([]ValuationRow, error) {
	if id.IsNil(filter.CompanyID) {
		return nil, apperror.NewValidation("company is required").WithDetail("field", "companyId")
	}
	var rows []ValuationRow
	err := tx.ReadOnly(ctx, s.txm, func(ctx context.Context) error {
		var err error
		rows, err = s.repo.Valuation(ctx, filter)
		return err
	})
	return rows, err
}
