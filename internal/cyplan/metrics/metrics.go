// Package metrics 提供 CyPlan 服务的业务指标收集，以 Prometheus 格式导出。
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cyplan"

// Metrics CyPlan 业务指标。
type Metrics struct {
	registry *prometheus.Registry

	retrievalTotal    *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	contextCache      *prometheus.CounterVec

	ingestFiles  *prometheus.CounterVec
	ingestChunks prometheus.Counter

	agentRuns     *prometheus.CounterVec
	agentRounds   prometheus.Histogram
	toolCalls     *prometheus.CounterVec
	modelCalls    *prometheus.CounterVec
	modelDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default 获取全局指标实例。
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New 创建独立注册表上的指标实例，包含 Go 运行时与进程采集器。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		retrievalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "total",
			Help: "Retrieval operations by source and outcome.",
		}, []string{"source", "status"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "duration_seconds",
			Help:    "Retrieval latency by source.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		contextCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "context_cache_total",
			Help: "Context cache lookups by result.",
		}, []string{"result"}),
		ingestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "files_total",
			Help: "Ingested files by outcome.",
		}, []string{"status"}),
		ingestChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "chunks_total",
			Help: "Chunks written to the vector index.",
		}),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "runs_total",
			Help: "Agent runs by outcome.",
		}, []string{"status"}),
		agentRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "agent", Name: "tool_rounds",
			Help:    "Tool rounds used per agent run.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "tool_calls_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "status"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "calls_total",
			Help: "Model calls by purpose and outcome.",
		}, []string{"purpose", "status"}),
		modelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
			Help:    "Model call latency by purpose.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"purpose"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.retrievalTotal, m.retrievalDuration, m.contextCache,
		m.ingestFiles, m.ingestChunks,
		m.agentRuns, m.agentRounds, m.toolCalls,
		m.modelCalls, m.modelDuration,
		m.httpRequests, m.httpDuration,
	)
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRetrieval 记录一次检索，source 为 vector 或 ontology。
func (m *Metrics) RecordRetrieval(source string, duration time.Duration, err error) {
	m.retrievalTotal.WithLabelValues(source, status(err)).Inc()
	m.retrievalDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordContextCache 记录上下文缓存命中或未命中。
func (m *Metrics) RecordContextCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.contextCache.WithLabelValues(result).Inc()
}

// RecordIngest 记录单个文件的导入结果。
func (m *Metrics) RecordIngest(chunks int, err error) {
	m.ingestFiles.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.ingestChunks.Add(float64(chunks))
	}
}

// RecordAgentRun 记录一次智能体运行及其工具轮数。
func (m *Metrics) RecordAgentRun(rounds int, err error) {
	m.agentRuns.WithLabelValues(status(err)).Inc()
	m.agentRounds.Observe(float64(rounds))
}

// RecordToolCall 记录一次工具调用。
func (m *Metrics) RecordToolCall(tool string, err error) {
	m.toolCalls.WithLabelValues(tool, status(err)).Inc()
}

// RecordModelCall 记录一次模型调用，purpose 如 agent、summary、chat。
func (m *Metrics) RecordModelCall(purpose string, duration time.Duration, err error) {
	m.modelCalls.WithLabelValues(purpose, status(err)).Inc()
	m.modelDuration.WithLabelValues(purpose).Observe(duration.Seconds())
}

// RecordHTTPRequest 记录一次 HTTP 请求，route 为匹配的路由模板。
func (m *Metrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry 返回底层注册表。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
