package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costledger/internal/infrastructure/storage/postgres"
)

func TestCollector_CountsPostings(t *testing.T) {
	c := NewCollector()

	c.ObservePosting("post_sale_and_cogs", "succeeded", 20*time.Millisecond)
	c.ObservePosting("post_sale_and_cogs", "succeeded", 30*time.Millisecond)
	c.ObservePosting("post_sale_and_cogs", "refused", time.Millisecond)
	c.IncRefusal("post_sale_and_cogs", "INSUFFICIENT_INVENTORY")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.postingsTotal.WithLabelValues("post_sale_and_cogs", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.postingsTotal.WithLabelValues("post_sale_and_cogs", "refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refusalsTotal.WithLabelValues("post_sale_and_cogs", "INSUFFICIENT_INVENTORY")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.postingDuration))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.IncRefusal("post_write_off", "DUPLICATE_POSTING")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), MetricRefusalsTotal)
	assert.Contains(t, string(body), `code="DUPLICATE_POSTING"`)
}

func TestCollector_WatchPool(t *testing.T) {
	c := NewCollector()
	stats := postgres.PoolStats{TotalConns: 5, AcquiredConns: 2, IdleConns: 3, MaxConns: 25, AcquireCount: 40}
	c.WatchPool(func() postgres.PoolStats { return stats })

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, mf := range families {
		switch mf.GetName() {
		case MetricDBConns:
			for _, m := range mf.GetMetric() {
				got[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
			}
		case MetricDBAcquireTotal:
			got["acquire"] = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"total": 5, "acquired": 2, "idle": 3, "max": 25, "acquire": 40}, got)

	stats.AcquiredConns = 4
	families, err = c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != MetricDBConns {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetLabel()[0].GetValue() == "acquired" {
				assert.Equal(t, 4.0, m.GetGauge().GetValue(), "gauges are read on scrape")
			}
		}
	}
}
