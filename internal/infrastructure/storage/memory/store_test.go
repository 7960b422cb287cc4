package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/core/tx"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/infrastructure/storage/memory"
)

var _ tx.ReadOnlyManager = (*memory.TxManager)(nil)

func newLayer(company id.ID, qty string) *costlayer.Layer {
	q := types.MustQuantity(qty)
	return &costlayer.Layer{
		ID:           id.New(),
		CompanyID:    company,
		ProductID:    id.New(),
		SourceType:   costlayer.SourcePurchase,
		SourceID:     id.New(),
		ReceivedQty:  q,
		RemainingQty: q,
		UnitCost:     types.MustMoney("1.00"),
		ReceivedAt:   time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUnit_FailureUndoesEverything(t *testing.T) {
	s := memory.New()
	company := id.New()
	kept := newLayer(company, "10")
	require.NoError(t, s.CostLayers().Insert(context.Background(), kept))

	dropped := newLayer(company, "5")
	boom := errors.New("boom")
	err := s.TxManager().RunInTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, s.CostLayers().Insert(ctx, dropped))
		require.NoError(t, s.CostLayers().Decrement(ctx, company, kept.ID, kept.RemainingQty, types.MustQuantity("4")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := s.CostLayers().Layer(dropped.ID)
	assert.False(t, ok)
	l, ok := s.CostLayers().Layer(kept.ID)
	require.True(t, ok)
	assert.Equal(t, types.MustQuantity("10"), l.RemainingQty)
}

func TestUnit_NestedFailureIsASavepoint(t *testing.T) {
	s := memory.New()
	company := id.New()
	outer := newLayer(company, "1")
	inner := newLayer(company, "2")
	txm := s.TxManager()

	err := txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, s.CostLayers().Insert(ctx, outer))
		innerErr := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, s.CostLayers().Insert(ctx, inner))
			return errors.New("inner")
		})
		assert.Error(t, innerErr)
		return nil
	})
	require.NoError(t, err)

	_, ok := s.CostLayers().Layer(outer.ID)
	assert.True(t, ok)
	_, ok = s.CostLayers().Layer(inner.ID)
	assert.False(t, ok)
}

func TestFailNext(t *testing.T) {
	s := memory.New()
	layer := newLayer(id.New(), "1")

	s.FailNext("costlayer.Insert", nil)
	err := s.CostLayers().Insert(context.Background(), layer)
	assert.ErrorIs(t, err, memory.ErrInjected)

	require.NoError(t, s.CostLayers().Insert(context.Background(), layer), "faults fire once")
}

func TestDecrement_StaleExpectation(t *testing.T) {
	s := memory.New()
	company := id.New()
	layer := newLayer(company, "3")
	require.NoError(t, s.CostLayers().Insert(context.Background(), layer))

	err := s.CostLayers().Decrement(context.Background(), company, layer.ID, types.MustQuantity("2"), types.MustQuantity("1"))
	assert.True(t, apperror.HasCode(err, apperror.CodeConcurrentModification))

	err = s.CostLayers().Decrement(context.Background(), id.New(), layer.ID, layer.RemainingQty, types.MustQuantity("1"))
	assert.True(t, apperror.IsNotFound(err), "layers of other companies are invisible")
}

func TestRunInTransaction_ExpiredContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	called := false
	err := memory.New().TxManager().RunInTransaction(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeTimeout))
	assert.False(t, called)
}
