package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	// 应该返回同一个单例实例
	assert.Same(t, Default(), Default())
}

func TestRecordRetrieval(t *testing.T) {
	m := New()

	m.RecordRetrieval("vector", 100*time.Millisecond, nil)
	m.RecordRetrieval("vector", 50*time.Millisecond, assert.AnError)
	m.RecordRetrieval("ontology", time.Millisecond, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.retrievalTotal.WithLabelValues("vector", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.retrievalTotal.WithLabelValues("vector", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.retrievalTotal.WithLabelValues("ontology", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.retrievalDuration))
}

func TestRecordContextCache(t *testing.T) {
	m := New()
	m.RecordContextCache(true)
	m.RecordContextCache(false)
	m.RecordContextCache(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.contextCache.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.contextCache.WithLabelValues("miss")))
}

func TestRecordIngest(t *testing.T) {
	m := New()
	m.RecordIngest(12, nil)
	m.RecordIngest(3, nil)
	// 失败时不计入分块
	m.RecordIngest(7, assert.AnError)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ingestFiles.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ingestFiles.WithLabelValues("error")))
	assert.Equal(t, float64(15), testutil.ToFloat64(m.ingestChunks))
}

func TestRecordAgentAndTools(t *testing.T) {
	m := New()
	m.RecordAgentRun(2, nil)
	m.RecordAgentRun(6, assert.AnError)
	m.RecordToolCall("get_risk_assessment", nil)
	m.RecordToolCall("get_risk_assessment", assert.AnError)
	m.RecordModelCall("agent", time.Second, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.agentRuns.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.agentRuns.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.toolCalls.WithLabelValues("get_risk_assessment", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.modelCalls.WithLabelValues("agent", "ok")))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("POST", "/threads", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("POST", "/threads", 200, 20*time.Millisecond)
	m.RecordHTTPRequest("GET", "unmatched", 404, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/threads", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordIngest(4, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cyplan_ingest_chunks_total 4")
	assert.Contains(t, string(body), "go_goroutines")
}
