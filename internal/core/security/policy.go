// Package security holds posting guards that sit in front of the ledger.
package security

import (
	"context"
	"sync"
	"time"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
)

// PostingPolicy decides whether a business date is still open for postings.
type PostingPolicy interface {
	// CanPost returns PERIOD_CLOSED when date falls into a closed period of the company.
	CanPost(ctx context.Context, companyID id.ID, date time.Time) error

	// ClosedUntil returns the first open day of the company (zero when nothing is closed).
	ClosedUntil(ctx context.Context, companyID id.ID) time.Time
}

// StrictPolicy forbids any posting dated before the closing boundary.
// The boundary is global with optional per-company overrides.
type StrictPolicy struct {
	mu        sync.RWMutex
	fallback  time.Time
	overrides map[id.ID]time.Time
}

// NewStrictPolicy creates policy that forbids postings before closedUntil.
func NewStrictPolicy(closedUntil time.Time) *StrictPolicy {
	return &StrictPolicy{
		fallback:  closedUntil,
		overrides: make(map[id.ID]time.Time),
	}
}

// Close moves the boundary of one company.
func (p *StrictPolicy) Close(companyID id.ID, until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[companyID] = until
}

func (p *StrictPolicy) CanPost(ctx context.Context, companyID id.ID, date time.Time) error {
	closed := p.ClosedUntil(ctx, companyID)
	if !closed.IsZero() && date.Before(closed) {
		return apperror.NewPeriodClosed(closed.Format("2006-01-02")).
			WithDetail("company_id", companyID.String()).
			WithDetail("date", date.Format("2006-01-02"))
	}
	return nil
}

func (p *StrictPolicy) ClosedUntil(ctx context.Context, companyID id.ID) time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.overrides[companyID]; ok {
		return t
	}
	return p.fallback
}

// OpenPolicy allows all postings (for development/testing).
type OpenPolicy struct{}

func (OpenPolicy) CanPost(ctx context.Context, companyID id.ID, date time.Time) error {
	return nil
}
func (OpenPolicy) ClosedUntil(ctx context.Context, companyID id.ID) time.Time { return time.Time{} }
