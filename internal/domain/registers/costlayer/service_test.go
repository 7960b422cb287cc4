package costlayer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/infrastructure/storage/memory"
)

var day1 = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	store *memory.Store
	svc   *costlayer.Service
	scope costlayer.Scope
}

func newHarness() *harness {
	store := memory.New()
	return &harness{
		store: store,
		svc:   costlayer.NewService(store.CostLayers(), store.TxManager()),
		scope: costlayer.Scope{CompanyID: id.New(), ProductID: id.New()},
	}
}

func (h *harness) receive(t *testing.T, qty, cost string, at time.Time) *costlayer.Layer {
	t.Helper()
	l, err := h.svc.Receive(context.Background(), costlayer.ReceiveRequest{
		Scope:      h.scope,
		Quantity:   types.MustQuantity(qty),
		UnitCost:   types.MustMoney(cost),
		ReceivedAt: at,
		SourceType: costlayer.SourcePurchase,
		SourceID:   id.New(),
	})
	require.NoError(t, err)
	return l
}

func (h *harness) remaining(t *testing.T, layerID id.ID) types.Quantity {
	t.Helper()
	l, ok := h.store.CostLayers().Layer(layerID)
	require.True(t, ok)
	return l.RemainingQty
}

func TestConsume_TwoLayerScenario(t *testing.T) {
	h := newHarness()
	a := h.receive(t, "10", "5.00", day1)
	b := h.receive(t, "10", "6.00", day1.AddDate(0, 0, 1))

	c, err := h.svc.Consume(context.Background(), costlayer.ConsumeRequest{
		Scope:    h.scope,
		Quantity: types.MustQuantity("15"),
		AsOf:     day1.AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	assert.Equal(t, "80.00", c.TotalCost.StringFixed(2))
	require.Len(t, c.Details, 2)
	assert.Equal(t, a.ID, c.Details[0].LayerID)
	assert.Equal(t, "50.00", c.Details[0].Cost.StringFixed(2))
	assert.Equal(t, b.ID, c.Details[1].LayerID)
	assert.Equal(t, "30.00", c.Details[1].Cost.StringFixed(2))

	_, detailCost := costlayer.SumDetails(c.Details)
	assert.True(t, detailCost.Equal(c.TotalCost))

	assert.Equal(t, types.Quantity(0), h.remaining(t, a.ID))
	assert.Equal(t, types.MustQuantity("5"), h.remaining(t, b.ID))
}

func TestConsume_NoOversell(t *testing.T) {
	h := newHarness()
	a := h.receive(t, "10", "5.00", day1)
	b := h.receive(t, "10", "6.00", day1.AddDate(0, 0, 1))

	before := map[id.ID]types.Quantity{a.ID: h.remaining(t, a.ID), b.ID: h.remaining(t, b.ID)}

	_, err := h.svc.Consume(context.Background(), costlayer.ConsumeRequest{
		Scope:    h.scope,
		Quantity: types.MustQuantity("20.0001"),
		AsOf:     day1.AddDate(0, 0, 2),
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientInventory))

	for layerID, qty := range before {
		assert.Equal(t, qty, h.remaining(t, layerID))
	}
}

func TestConsume_IgnoresLaterReceipts(t *testing.T) {
	h := newHarness()
	h.receive(t, "10", "5.00", day1)
	h.receive(t, "10", "6.00", day1.AddDate(0, 0, 5))

	_, err := h.svc.Consume(context.Background(), costlayer.ConsumeRequest{
		Scope:    h.scope,
		Quantity: types.MustQuantity("12"),
		AsOf:     day1.AddDate(0, 0, 1),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientInventory))

	avail, err := h.svc.Available(context.Background(), h.scope, day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("10"), avail)
}

func TestConsume_LocationsAreSeparate(t *testing.T) {
	h := newHarness()
	h.receive(t, "10", "5.00", day1)

	other := h.scope
	other.Location = entity.Location{WarehouseID: id.New()}
	_, err := h.svc.Consume(context.Background(), costlayer.ConsumeRequest{
		Scope:    other,
		Quantity: types.MustQuantity("1"),
		AsOf:     day1,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientInventory))
}

func TestConsume_RejectsBadRequests(t *testing.T) {
	h := newHarness()

	_, err := h.svc.Consume(context.Background(), costlayer.ConsumeRequest{Scope: h.scope, Quantity: 0})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = h.svc.Consume(context.Background(), costlayer.ConsumeRequest{
		Scope:    costlayer.Scope{CompanyID: h.scope.CompanyID},
		Quantity: types.MustQuantity("1"),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestReverse_RestoresExactLayers(t *testing.T) {
	h := newHarness()
	a := h.receive(t, "3.3333", "1.234567", day1)
	b := h.receive(t, "7", "2.50", day1.AddDate(0, 0, 1))
	before := map[id.ID]types.Quantity{a.ID: h.remaining(t, a.ID), b.ID: h.remaining(t, b.ID)}

	c, err := h.svc.Consume(context.Background(), costlayer.ConsumeRequest{
		Scope:    h.scope,
		Quantity: types.MustQuantity("5.1"),
		AsOf:     day1.AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	require.NoError(t, h.svc.Reverse(context.Background(), h.scope.CompanyID, c.Details))
	for layerID, qty := range before {
		assert.Equal(t, qty, h.remaining(t, layerID))
	}
}

func TestReverse_CannotExceedReceived(t *testing.T) {
	h := newHarness()
	a := h.receive(t, "2", "1.00", day1)

	err := h.svc.Reverse(context.Background(), h.scope.CompanyID, []costlayer.ConsumptionDetail{
		{LayerID: a.ID, Quantity: types.MustQuantity("1")},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	assert.Equal(t, types.MustQuantity("2"), h.remaining(t, a.ID))
}

func TestReverseCOGS_OncePerTransaction(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	a := h.receive(t, "10", "4.00", day1)
	sourceID := id.New()

	c, err := h.svc.Consume(ctx, costlayer.ConsumeRequest{Scope: h.scope, Quantity: types.MustQuantity("4"), AsOf: day1})
	require.NoError(t, err)
	_, err = h.svc.RecordCOGS(ctx, "sale", sourceID, c)
	require.NoError(t, err)

	reversals, err := h.svc.ReverseCOGS(ctx, h.scope.CompanyID, "sale", sourceID)
	require.NoError(t, err)
	require.Len(t, reversals, 1)
	assert.Equal(t, "-16.00", reversals[0].TotalCost.StringFixed(2))
	assert.Equal(t, types.MustQuantity("10"), h.remaining(t, a.ID))

	// Nothing active is left, so a second reversal is a no-op.
	reversals, err = h.svc.ReverseCOGS(ctx, h.scope.CompanyID, "sale", sourceID)
	require.NoError(t, err)
	assert.Empty(t, reversals)
	assert.Equal(t, types.MustQuantity("10"), h.remaining(t, a.ID))
}

func TestValuation(t *testing.T) {
	h := newHarness()
	h.receive(t, "10", "5.00", day1)
	h.receive(t, "10", "6.00", day1.AddDate(0, 0, 1))

	_, err := h.svc.Consume(context.Background(), costlayer.ConsumeRequest{
		Scope: h.scope, Quantity: types.MustQuantity("15"), AsOf: day1.AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	rows, err := h.svc.Valuation(context.Background(), costlayer.ValuationFilter{CompanyID: h.scope.CompanyID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.MustQuantity("5"), rows[0].Quantity)
	assert.Equal(t, "30.00", rows[0].Value.StringFixed(2))

	_, err = h.svc.Valuation(context.Background(), costlayer.ValuationFilter{})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
