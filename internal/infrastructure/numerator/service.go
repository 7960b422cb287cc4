// Package numerator provides the PostgreSQL implementation of numbering.
// It implements core/numerator.Generator over the sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"costledger/internal/core/id"
	corenumerator "costledger/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierFunc picks the querier for a call; the tx manager's GetQuerier
// satisfies it so numbers are taken inside the current posting unit.
type QuerierFunc func(ctx context.Context) Querier

type cachedRange struct {
	current int64
	max     int64
}

// Service provides numbering backed by PostgreSQL.
type Service struct {
	querier QuerierFunc

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator over a fixed querier (tests, tooling).
func New(q Querier) *Service {
	return NewWithQuerierFunc(func(context.Context) Querier { return q })
}

// NewWithQuerierFunc creates a numerator resolving its querier per call.
func NewWithQuerierFunc(fn QuerierFunc) *Service {
	return &Service{
		querier: fn,
		ranges:  make(map[string]*cachedRange),
	}
}

// GetNextNumber generates the next number of a company sequence.
func (s *Service) GetNextNumber(ctx context.Context, companyID id.ID, cfg corenumerator.Config, opts *corenumerator.Options, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	if opts == nil {
		opts = corenumerator.DefaultOptions()
	}

	key := cfg.Key(companyID, period)

	var (
		num int64
		err error
	)
	switch opts.Strategy {
	case corenumerator.StrategyCached:
		num, err = s.nextCached(ctx, key, opts)
	default:
		num, err = s.nextStrict(ctx, key)
	}
	if err != nil {
		return "", err
	}

	return cfg.Format(period, num), nil
}

// nextStrict takes one number with UPSERT + RETURNING. The row stays locked
// until the surrounding transaction ends, which serializes writers per key.
func (s *Service) nextStrict(ctx context.Context, key string) (int64, error) {
	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// nextCached hands out numbers from an in-memory range, reserving a new
// range from the database when the current one is exhausted.
func (s *Service) nextCached(ctx context.Context, key string, opts *corenumerator.Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50
		}

		var newMax int64
		err := s.querier(ctx).QueryRow(ctx, `
			INSERT INTO sys_sequences (key, current_val)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
			RETURNING current_val
		`, key, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}

		// Reserved range is (newMax-size, newMax].
		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}
