package consignment_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/core/types"
	"costledger/internal/domain/consignment"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/domain/registers/stock"
	"costledger/internal/infrastructure/storage/memory"
)

var day1 = time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	store    *memory.Store
	layers   *costlayer.Service
	stock    *stock.Service
	svc      *consignment.Service
	company  id.ID
	product  id.ID
	partner  id.ID
	invoice  id.ID
	layerIDs []id.ID
}

// newHarness receives 10 @ 5.00 and 10 @ 6.00 and transfers 15 to a partner.
func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	txm := store.TxManager()
	layers := costlayer.NewService(store.CostLayers(), txm)
	stockSvc := stock.NewService(store.Stock())
	h := &harness{
		store:   store,
		layers:  layers,
		stock:   stockSvc,
		svc:     consignment.NewService(store.Consignment(), layers, stockSvc, txm),
		company: id.New(),
		product: id.New(),
		partner: id.New(),
		invoice: id.New(),
	}

	for i, cost := range []string{"5.00", "6.00"} {
		l, err := layers.Receive(context.Background(), costlayer.ReceiveRequest{
			Scope:      costlayer.Scope{CompanyID: h.company, ProductID: h.product},
			Quantity:   types.MustQuantity("10"),
			UnitCost:   types.MustMoney(cost),
			ReceivedAt: day1.AddDate(0, 0, i),
			SourceType: costlayer.SourcePurchase,
			SourceID:   id.New(),
		})
		require.NoError(t, err)
		h.layerIDs = append(h.layerIDs, l.ID)
	}

	records, err := h.svc.TransferOut(context.Background(), consignment.TransferRequest{
		CompanyID:   h.company,
		PartnerID:   h.partner,
		SourceDocID: h.invoice,
		Date:        day1.AddDate(0, 0, 2),
		Items:       []consignment.TransferItem{{ProductID: h.product, Quantity: types.MustQuantity("15")}},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	return h
}

func (h *harness) record(t *testing.T) consignment.Record {
	t.Helper()
	records, err := h.svc.Records(context.Background(), h.company, h.invoice)
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func (h *harness) assertConserved(t *testing.T) {
	t.Helper()
	rec := h.record(t)
	assert.Equal(t, rec.Quantity, rec.ClearedQty+rec.ReturnedQty+rec.WithPartner())
	assert.NoError(t, rec.CheckConservation(context.Background()))
}

func (h *harness) remaining(t *testing.T, i int) types.Quantity {
	t.Helper()
	l, ok := h.store.CostLayers().Layer(h.layerIDs[i])
	require.True(t, ok)
	return l.RemainingQty
}

func TestTransferOut_TakesFIFOCost(t *testing.T) {
	h := newHarness(t)
	rec := h.record(t)

	assert.Equal(t, consignment.StatusOpen, rec.Status)
	assert.Equal(t, "80.00", rec.CostBasis.StringFixed(2))
	assert.Equal(t, types.Quantity(0), h.remaining(t, 0))
	assert.Equal(t, types.MustQuantity("5"), h.remaining(t, 1))
	h.assertConserved(t)

	// Own custody dropped by 15, partner custody rose by 15.
	own, err := h.stock.Balances(context.Background(), h.company, stock.BalanceFilter{Custody: entity.CustodyOwn})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, -types.MustQuantity("15"), own[0].Quantity)
}

func TestTransferOut_Twice(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.TransferOut(context.Background(), consignment.TransferRequest{
		CompanyID:   h.company,
		PartnerID:   h.partner,
		SourceDocID: h.invoice,
		Date:        day1.AddDate(0, 0, 2),
		Items:       []consignment.TransferItem{{ProductID: h.product, Quantity: types.MustQuantity("1")}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
}

func TestClear_RatioCostsOldestUnits(t *testing.T) {
	h := newHarness(t)

	results, err := h.svc.Clear(context.Background(), consignment.ClearRequest{
		CompanyID:   h.company,
		SourceDocID: h.invoice,
		PaidRatio:   decimal.RequireFromString("0.4"),
		Date:        day1.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, types.MustQuantity("6"), results[0].Cleared)
	assert.Equal(t, "30.00", results[0].Cost.StringFixed(2))
	assert.Equal(t, consignment.StatusOpen, results[0].Status)
	h.assertConserved(t)

	// The rest clears at the remaining cost.
	results, err = h.svc.Clear(context.Background(), consignment.ClearRequest{
		CompanyID:   h.company,
		SourceDocID: h.invoice,
		PaidRatio:   decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("9"), results[0].Cleared)
	assert.Equal(t, "50.00", results[0].Cost.StringFixed(2))
	assert.Equal(t, consignment.StatusCleared, results[0].Status)
	h.assertConserved(t)
}

func TestClear_ClipsToAvailable(t *testing.T) {
	h := newHarness(t)

	results, err := h.svc.Clear(context.Background(), consignment.ClearRequest{
		CompanyID:   h.company,
		SourceDocID: h.invoice,
		Quantities:  map[id.ID]types.Quantity{h.product: types.MustQuantity("20")},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.MustQuantity("15"), results[0].Cleared)
	assert.Equal(t, types.MustQuantity("5"), results[0].Clipped)
	h.assertConserved(t)
}

func TestClear_RejectsBadRatio(t *testing.T) {
	h := newHarness(t)
	for _, ratio := range []string{"0", "-0.5", "1.01"} {
		_, err := h.svc.Clear(context.Background(), consignment.ClearRequest{
			CompanyID:   h.company,
			SourceDocID: h.invoice,
			PaidRatio:   decimal.RequireFromString(ratio),
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), ratio)
	}
	h.assertConserved(t)
}

func TestClear_RejectsNonPositiveQuantities(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name       string
		quantities map[id.ID]types.Quantity
	}{
		{"negative", map[id.ID]types.Quantity{h.product: -types.MustQuantity("2")}},
		{"zero", map[id.ID]types.Quantity{h.product: 0}},
		{"empty", map[id.ID]types.Quantity{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := h.svc.Clear(context.Background(), consignment.ClearRequest{
				CompanyID:   h.company,
				SourceDocID: h.invoice,
				Quantities:  tt.quantities,
			})
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
			assert.Empty(t, results)
		})
	}
	assert.True(t, h.record(t).ClearedQty.IsZero())
	h.assertConserved(t)
}

func TestClear_ReportsEarlierClearings(t *testing.T) {
	h := newHarness(t)
	clearQty := func(qty string) consignment.ClearResult {
		results, err := h.svc.Clear(context.Background(), consignment.ClearRequest{
			CompanyID:   h.company,
			SourceDocID: h.invoice,
			Quantities:  map[id.ID]types.Quantity{h.product: types.MustQuantity(qty)},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		return results[0]
	}

	first := clearQty("4")
	assert.True(t, first.ClearedBefore.IsZero())
	second := clearQty("3")
	assert.Equal(t, types.MustQuantity("4"), second.ClearedBefore)
	assert.Equal(t, types.MustQuantity("3"), second.Cleared)
}

func TestTransferOut_OneRecordPerProduct(t *testing.T) {
	h := newHarness(t)
	other := id.New()

	_, err := h.svc.TransferOut(context.Background(), consignment.TransferRequest{
		CompanyID:   h.company,
		PartnerID:   h.partner,
		SourceDocID: other,
		Date:        day1.AddDate(0, 0, 2),
		Items: []consignment.TransferItem{
			{ProductID: h.product, Quantity: types.MustQuantity("1")},
			{ProductID: h.product, Quantity: types.MustQuantity("1")},
		},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	// The first item was undone with the unit.
	records, err := h.svc.Records(context.Background(), h.company, other)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, types.MustQuantity("5"), h.remaining(t, 1))
}

func TestReturn_RestoresNewestLayersFirst(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Return(context.Background(), consignment.ReturnRequest{
		CompanyID:   h.company,
		SourceDocID: h.invoice,
		ProductID:   h.product,
		Quantity:    types.MustQuantity("7"),
	})
	require.NoError(t, err)

	assert.Equal(t, types.MustQuantity("7"), res.Returned)
	assert.Equal(t, "40.00", res.Cost.StringFixed(2))
	assert.Equal(t, types.MustQuantity("2"), h.remaining(t, 0))
	assert.Equal(t, types.MustQuantity("10"), h.remaining(t, 1))
	h.assertConserved(t)
}

func TestReturn_ClipsAndCloses(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Clear(context.Background(), consignment.ClearRequest{
		CompanyID:   h.company,
		SourceDocID: h.invoice,
		Quantities:  map[id.ID]types.Quantity{h.product: types.MustQuantity("5")},
	})
	require.NoError(t, err)

	res, err := h.svc.Return(context.Background(), consignment.ReturnRequest{
		CompanyID:   h.company,
		SourceDocID: h.invoice,
		ProductID:   h.product,
		Quantity:    types.MustQuantity("12"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("10"), res.Returned)
	assert.Equal(t, types.MustQuantity("2"), res.Clipped)
	assert.Equal(t, consignment.StatusReturned, res.Status)
	h.assertConserved(t)

	// Both layers are whole again except the five units sold.
	assert.Equal(t, types.MustQuantity("5"), h.remaining(t, 0))
	assert.Equal(t, types.MustQuantity("10"), h.remaining(t, 1))
}

func TestReturn_UnknownProduct(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Return(context.Background(), consignment.ReturnRequest{
		CompanyID:   h.company,
		SourceDocID: h.invoice,
		ProductID:   id.New(),
		Quantity:    types.MustQuantity("1"),
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestCheckConservation(t *testing.T) {
	rec := consignment.Record{
		ID:          id.New(),
		Quantity:    types.MustQuantity("10"),
		ClearedQty:  types.MustQuantity("4"),
		ReturnedQty: types.MustQuantity("1"),
		Allocations: []costlayer.ConsumptionDetail{{LayerID: id.New(), Quantity: types.MustQuantity("5")}},
	}
	assert.NoError(t, rec.CheckConservation(context.Background()))

	rec.ReturnedQty = types.MustQuantity("7")
	assert.True(t, apperror.HasCode(rec.CheckConservation(context.Background()), apperror.CodeInvalidState))

	rec.ReturnedQty = types.MustQuantity("1")
	rec.Allocations[0].Quantity = types.MustQuantity("4")
	assert.True(t, apperror.HasCode(rec.CheckConservation(context.Background()), apperror.CodeInvalidState))
}
