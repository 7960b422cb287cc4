package stock

import (
	"context"
	"fmt"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/pkg/logger"
)

// Service provides business operations for the stock register.
// Transactions are managed by the caller (posting engine).
type Service struct {
	repo Repository
}

// NewService creates a new stock register service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// RecordMovements appends movements produced by a business event.
func (s *Service) RecordMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	for i, m := range movements {
		if !m.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("movement %d: quantity must be positive", i))
		}
		if id.IsNil(m.CompanyID) {
			return apperror.NewValidation(fmt.Sprintf("movement %d: company_id is required", i))
		}
		if id.IsNil(m.RecorderID) {
			return apperror.NewValidation(fmt.Sprintf("movement %d: recorder_id is required", i))
		}
		if m.Custody == entity.CustodyPartner && id.IsNil(m.PartnerID) {
			return apperror.NewValidation(fmt.Sprintf("movement %d: partner_id is required for partner custody", i))
		}
	}

	if err := s.repo.CreateMovements(ctx, movements); err != nil {
		return fmt.Errorf("create movements: %w", err)
	}

	logger.Debug(ctx, "recorded stock movements",
		"count", len(movements),
		"recorder_type", movements[0].RecorderType,
		"recorder_id", movements[0].RecorderID,
	)
	return nil
}

// Movements returns what one business event recorded, reversals included
// when they share the recorder.
func (s *Service) Movements(ctx context.Context, companyID id.ID, recorderType string, recorderID id.ID) ([]entity.StockMovement, error) {
	return s.repo.GetMovementsByRecorder(ctx, companyID, recorderType, recorderID)
}

// Balances returns current quantities of a company.
func (s *Service) Balances(ctx context.Context, companyID id.ID, filter BalanceFilter) ([]entity.StockBalance, error) {
	return s.repo.GetBalances(ctx, companyID, filter)
}

// ProductOnHand sums own-custody quantities of a product across locations.
func (s *Service) ProductOnHand(ctx context.Context, companyID, productID id.ID) (types.Quantity, error) {
	balances, err := s.repo.GetBalances(ctx, companyID, BalanceFilter{
		ProductIDs: []id.ID{productID},
		Custody:    entity.CustodyOwn,
	})
	if err != nil {
		return 0, fmt.Errorf("get balances: %w", err)
	}

	var total types.Quantity
	for _, b := range balances {
		total += b.Quantity
	}
	return total, nil
}
