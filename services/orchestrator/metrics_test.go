package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetricsObserve(t *testing.T) {
	m := NewRunMetrics()
	report := failedReport()
	m.Observe(report)

	assert.Equal(t, report.Total.Seconds(), testutil.ToFloat64(m.run))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.success))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.stage.WithLabelValues("provision", ActionInfrastructureApply, "succeeded")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.stage), "pending stages are skipped")
}

func TestRunMetricsPush(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewRunMetrics()
	report := failedReport()
	m.Observe(report)

	require.NoError(t, m.Push(context.Background(), srv.URL, "", report))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/cloudbench/provider/azure", gotPath)

	assert.Error(t, m.Push(context.Background(), "", "job", report))
}
