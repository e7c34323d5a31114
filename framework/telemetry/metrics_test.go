package telemetry

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordRuns(t *testing.T) {
	m := NewMetrics()
	m.RecordRun("open", OutcomeCommitted, time.Millisecond)
	m.RecordRun("change", OutcomeStale, time.Millisecond)
	m.RecordRun("change", OutcomeStale, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("open", OutcomeCommitted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("change", OutcomeStale)))

	m.RecordUnresolved(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.unresolvedTotal))

	m.SetDocuments(2, 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.documents.WithLabelValues("tracked")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordRun("open", OutcomeCommitted, time.Second)
	m.RecordCascade(3)
	m.RecordUnresolved(1)
	m.SetDocuments(1, 1)
}

func TestMetricsHandlerServesText(t *testing.T) {
	m := NewMetrics()
	m.RecordCascade(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "schemals_pipeline_cascade_documents")
}
