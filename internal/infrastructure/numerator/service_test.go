package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/id"
	corenumerator "costledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = m.val
	}
	return nil
}

// mockQuerier simulates sys_sequences: one counter per key,
// incremented by the second argument when present.
type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{values: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	key := args[0].(string)
	increment := int64(1)
	if len(args) == 2 {
		increment = args[1].(int64)
	}
	m.values[key] += increment
	return &mockRow{val: m.values[key]}
}

var period = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	company := id.New()

	num, err := svc.GetNextNumber(ctx, company, corenumerator.JournalConfig(), nil, period)
	require.NoError(t, err)
	assert.Equal(t, "JE-2026-00001", num)

	num, err = svc.GetNextNumber(ctx, company, corenumerator.JournalConfig(), nil, period)
	require.NoError(t, err)
	assert.Equal(t, "JE-2026-00002", num)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_SequencesArePerCompany(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()

	a, err := svc.GetNextNumber(ctx, id.New(), corenumerator.JournalConfig(), nil, period)
	require.NoError(t, err)
	b, err := svc.GetNextNumber(ctx, id.New(), corenumerator.JournalConfig(), nil, period)
	require.NoError(t, err)

	assert.Equal(t, "JE-2026-00001", a)
	assert.Equal(t, "JE-2026-00001", b)
}

func TestGetNextNumber_YearResets(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	company := id.New()

	_, err := svc.GetNextNumber(ctx, company, corenumerator.JournalConfig(), nil, period)
	require.NoError(t, err)
	num, err := svc.GetNextNumber(ctx, company, corenumerator.JournalConfig(), nil, period.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "JE-2027-00001", num)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	company := id.New()
	cfg := corenumerator.DefaultConfig("AUD")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(ctx, company, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "AUD-2026-00001", num)
	assert.Equal(t, 1, q.calls)

	for i := 0; i < 9; i++ {
		_, err = svc.GetNextNumber(ctx, company, cfg, opts, period)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, q.calls, "range of 10 served from memory")

	num, err = svc.GetNextNumber(ctx, company, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "AUD-2026-00011", num)
	assert.Equal(t, 2, q.calls)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		cfg  corenumerator.Config
		num  int64
		want string
	}{
		{"with year", corenumerator.DefaultConfig("JE"), 7, "JE-2026-00007"},
		{"no year", corenumerator.Config{Prefix: "X", PadWidth: 3}, 42, "X-042"},
		{"default pad", corenumerator.Config{Prefix: "X"}, 1, "X-00001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Format(period, tt.num))
		})
	}
}
