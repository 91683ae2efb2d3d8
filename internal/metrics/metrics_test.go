package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestRecordUpload_LabelsDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpload("food-image", false)
	c.RecordUpload("food-image", true)
	c.RecordUpload("food-image", false)

	mf := findMetric(t, reg, "health_uploads_total")
	require.Len(t, mf.GetMetric(), 2)

	values := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "duplicate" {
				values[label.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["false"])
	assert.Equal(t, 1.0, values["true"])
}

func TestRecordAlertsAndConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAlert("sodium")
	c.RecordAlert("sodium")
	c.RecordMergeConflict()
	c.RecordStage("analyze", "succeeded", 2*time.Second)

	assert.Equal(t, 2.0, findMetric(t, reg, "health_alerts_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, uint64(1), findMetric(t, reg, "health_stage_duration_seconds").GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 1.0, findMetric(t, reg, "health_summary_merge_conflicts_total").GetMetric()[0].GetCounter().GetValue())
}

func TestRecordTick_SetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTick(12, 3, 4*time.Second)

	assert.Equal(t, 12.0, findMetric(t, reg, "health_digest_tick_users").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 3.0, findMetric(t, reg, "health_digest_tick_failures").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, uint64(1), findMetric(t, reg, "health_digest_tick_duration_seconds").GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordNotification("sent")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `health_notifications_total{status="sent"} 1`)
}
