package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/domain/posting/postingtest"
	v1 "costledger/internal/infrastructure/http/v1"
	"costledger/internal/infrastructure/http/v1/middleware"
)

type fakeDB struct{ err error }

func (f fakeDB) Ready(context.Context) error { return f.err }

type apiResponse struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details"`
	Success       bool           `json:"success"`
	AlreadyPosted bool           `json:"alreadyPosted"`
	EntryIDs      []string       `json:"entryIds"`
	COGSTotal     string         `json:"cogsTotal"`
}

func newServer(t *testing.T, f *postingtest.Fixture, cfg v1.RouterConfig) http.Handler {
	t.Helper()
	cfg.Engine = f.Engine
	cfg.Layers = f.Layers
	return v1.NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestHealth(t *testing.T) {
	f := postingtest.New(t)

	h := newServer(t, f, v1.RouterConfig{})
	w, _ := do(t, h, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, h, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	h = newServer(t, f, v1.RouterConfig{DB: fakeDB{err: errors.New("connection refused")}})
	w, _ = do(t, h, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsMount(t *testing.T) {
	f := postingtest.New(t)
	h := newServer(t, f, v1.RouterConfig{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		MetricsPath: "/internal/metrics",
	})

	req := httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())
}

func TestSalePosting(t *testing.T) {
	f := postingtest.New(t)
	product := id.New()
	f.Receive(t, postingtest.Day(1), product, "10", "5.00")
	inv := f.Invoice(postingtest.Day(2), postingtest.Item{ProductID: product, Quantity: "4", Price: "8.00"})
	h := newServer(t, f, v1.RouterConfig{})

	path := fmt.Sprintf("/api/v1/companies/%s/invoices/%s/sale-posting", f.Company, inv.ID)

	w, body := do(t, h, http.MethodPost, path, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, body.Success)
	assert.Len(t, body.EntryIDs, 2)
	assert.True(t, decimal.RequireFromString(body.COGSTotal).Equal(decimal.NewFromInt(20)))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	w, body = do(t, h, http.MethodPost, path, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.AlreadyPosted)

	w, body = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, body.Code)

	w, body = do(t, h, http.MethodDelete, path+"?reason=returned", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body.EntryIDs, 2)
}

func TestSalePosting_Refusal(t *testing.T) {
	f := postingtest.New(t)
	product := id.New()
	f.Receive(t, postingtest.Day(1), product, "2", "5.00")
	inv := f.Invoice(postingtest.Day(2), postingtest.Item{ProductID: product, Quantity: "5", Price: "8.00"})
	h := newServer(t, f, v1.RouterConfig{})

	w, body := do(t, h, http.MethodPost,
		fmt.Sprintf("/api/v1/companies/%s/invoices/%s/sale-posting", f.Company, inv.ID), "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInsufficientInventory, body.Code)
	assert.Equal(t, product.String(), body.Details["product_id"])
	assert.Equal(t, "2.0000", body.Details["available"])
}

func TestSalePosting_BadOverride(t *testing.T) {
	f := postingtest.New(t)
	h := newServer(t, f, v1.RouterConfig{})

	w, body := do(t, h, http.MethodPost,
		fmt.Sprintf("/api/v1/companies/%s/invoices/%s/sale-posting", f.Company, id.New()),
		`{"accountOverrides":{"inventory":"not-an-id"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, body.Code)
}

func TestInvalidPathIDs(t *testing.T) {
	f := postingtest.New(t)
	h := newServer(t, f, v1.RouterConfig{})

	tests := []struct {
		name string
		path string
	}{
		{"company", fmt.Sprintf("/api/v1/companies/nope/invoices/%s/sale-posting", id.New())},
		{"nil company", fmt.Sprintf("/api/v1/companies/%s/invoices/%s/sale-posting", id.Nil(), id.New())},
		{"invoice", fmt.Sprintf("/api/v1/companies/%s/invoices/nope/sale-posting", f.Company)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, h, http.MethodPost, tt.path, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperror.CodeValidation, body.Code)
		})
	}
}

func TestUnknownInvoice(t *testing.T) {
	f := postingtest.New(t)
	h := newServer(t, f, v1.RouterConfig{})

	w, body := do(t, h, http.MethodPost,
		fmt.Sprintf("/api/v1/companies/%s/invoices/%s/sale-posting", f.Company, id.New()), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, body.Code)
}

func TestPartnerEndpoints(t *testing.T) {
	f := postingtest.New(t)
	product := id.New()
	f.Receive(t, postingtest.Day(1), product, "10", "5.00")
	inv := f.Invoice(postingtest.Day(2), postingtest.Item{ProductID: product, Quantity: "10", Price: "8.00"})
	h := newServer(t, f, v1.RouterConfig{})
	base := fmt.Sprintf("/api/v1/companies/%s/invoices/%s", f.Company, inv.ID)

	w, _ := do(t, h, http.MethodPost, base+"/partner-transfer", fmt.Sprintf(`{"partnerId":%q}`, id.New()))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, body := do(t, h, http.MethodPost, base+"/partner-clearing",
		fmt.Sprintf(`{"paidRatio":"0.5","quantities":{%q:"1"}}`, product))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, body.Code)

	payment := id.New()
	clearing := fmt.Sprintf(`{"paidRatio":"0.5","paymentId":%q}`, payment)
	w, body = do(t, h, http.MethodPost, base+"/partner-clearing", clearing)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, decimal.RequireFromString(body.COGSTotal).Equal(decimal.NewFromInt(25)))

	w, body = do(t, h, http.MethodPost, base+"/partner-clearing", clearing)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.AlreadyPosted)

	w, _ = do(t, h, http.MethodPost, base+"/partner-returns",
		fmt.Sprintf(`{"productId":%q,"quantity":"8"}`, product))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ret struct {
		Clipped []struct {
			Applied json.Number `json:"applied"`
			Clipped json.Number `json:"clipped"`
		} `json:"clipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ret))
	require.Len(t, ret.Clipped, 1)
	assert.Equal(t, "5.0000", ret.Clipped[0].Applied.String())
	assert.Equal(t, "3.0000", ret.Clipped[0].Clipped.String())
}

func TestValuation(t *testing.T) {
	f := postingtest.New(t)
	product := id.New()
	other := id.New()
	f.Receive(t, postingtest.Day(1), product, "10", "5.00")
	f.Receive(t, postingtest.Day(1), other, "2", "7.50")
	h := newServer(t, f, v1.RouterConfig{})

	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/companies/%s/inventory/valuation?productId=%s", f.Company, product), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Items []json.RawMessage `json:"items"`
		Total string            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Items, 1)
	assert.True(t, decimal.RequireFromString(out.Total).Equal(decimal.NewFromInt(50)))
}
