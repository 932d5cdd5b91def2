package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.DownloadsRecordedTotal.Inc()
	m.PendingEntries.Set(3)
	m.ObserveFlush(42, 0, 150*time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["registry_downloads_recorded_total"])
	assert.True(t, names["registry_downloads_pending_entries"])
	assert.True(t, names["registry_flush_cycles_total"])
	assert.True(t, names["registry_flush_persisted_downloads_total"])
}

func TestObserveFlushStatusLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveFlush(10, 0, time.Millisecond)
	m.ObserveFlush(0, 2, time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	var successes, failures float64
	for _, mf := range families {
		if mf.GetName() != "registry_flush_cycles_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				switch label.GetValue() {
				case "success":
					successes = metric.GetCounter().GetValue()
				case "partial_failure":
					failures = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(1), successes)
	assert.Equal(t, float64(1), failures)
}

func TestInstrumentHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := m.InstrumentHandler("/packages/{name}/{version}/download",
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusFound)
		}))

	req := httptest.NewRequest(http.MethodGet, "/packages/serde/1.0.0/download", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)

	families, err := registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "registry_http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}
			if labels["path"] == "/packages/{name}/{version}/download" && labels["status"] == "302" {
				found = true
				assert.Equal(t, float64(1), metric.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found, "expected request counter with route template label")
}

func TestMetricsHandlerServes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.DownloadsRecordedTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "registry_downloads_recorded_total")
}
