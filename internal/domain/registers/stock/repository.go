// Package stock provides the physical stock register: who holds how many
// units where. Cost lives in the cost layer store; this register carries
// quantities only.
package stock

import (
	"context"

	"costledger/internal/core/entity"
	"costledger/internal/core/id"
)

// Repository defines operations for the stock register.
type Repository interface {
	// CreateMovements appends movements (used during posting)
	CreateMovements(ctx context.Context, movements []entity.StockMovement) error

	// GetMovementsByRecorder retrieves the movements a business event wrote
	GetMovementsByRecorder(ctx context.Context, companyID id.ID, recorderType string, recorderID id.ID) ([]entity.StockMovement, error)

	// GetBalances aggregates movements per location, custody and product
	GetBalances(ctx context.Context, companyID id.ID, filter BalanceFilter) ([]entity.StockBalance, error)
}

// BalanceFilter for filtering balance queries.
type BalanceFilter struct {
	ProductIDs  []id.ID
	Custody     entity.Custody
	ExcludeZero bool
}
