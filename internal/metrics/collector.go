// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 中继指标
	relayRequestsTotal     *prometheus.CounterVec
	relayUpstreamDuration  *prometheus.HistogramVec
	relayStreamDuration    *prometheus.HistogramVec
	relayStreamBytes       prometheus.Counter
	relayStreamFragments   prometheus.Counter
	relayStreamsTerminated *prometheus.CounterVec

	// 会话指标
	sessionTurnsTotal      *prometheus.CounterVec
	voiceDuplicatesDropped prometheus.Counter

	// 历史存储指标
	historyOpsTotal    *prometheus.CounterVec
	historyOpsDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

var (
	headerWaitBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	streamBuckets     = []float64{0.5, 1, 2, 5, 10, 30, 60, 120}
	sizeBuckets       = prometheus.ExponentialBuckets(100, 10, 8)
)

// NewCollector 指标注册到默认 registry，同一 namespace 只能创建一次
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	f := factory{ns: namespace, auto: promauto.With(prometheus.DefaultRegisterer)}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),

		httpRequestsTotal:   f.counterVec("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: f.histogramVec("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:     f.histogramVec("http_request_size_bytes", "HTTP request size in bytes", sizeBuckets, "method", "path"),
		httpResponseSize:    f.histogramVec("http_response_size_bytes", "HTTP response size in bytes", sizeBuckets, "method", "path"),

		relayRequestsTotal:     f.counterVec("relay_requests_total", "Total number of relayed chat requests", "outcome", "upstream_status"),
		relayUpstreamDuration:  f.histogramVec("relay_upstream_header_seconds", "Time until the upstream gateway returned response headers", headerWaitBuckets, "outcome"),
		relayStreamDuration:    f.histogramVec("relay_stream_duration_seconds", "Duration of relayed SSE streams", streamBuckets, "terminated"),
		relayStreamBytes:       f.counter("relay_stream_bytes_total", "Total bytes piped from upstream to clients"),
		relayStreamFragments:   f.counter("relay_stream_fragments_total", "Total text fragments observed in relayed streams"),
		relayStreamsTerminated: f.counterVec("relay_streams_total", "Relayed streams by whether the [DONE] sentinel was seen", "terminated"),

		sessionTurnsTotal:      f.counterVec("session_turns_total", "Total number of conversation turns by outcome", "outcome"),
		voiceDuplicatesDropped: f.counter("voice_duplicates_dropped_total", "Voice utterances suppressed as duplicates"),

		historyOpsTotal:    f.counterVec("history_operations_total", "Total number of chat history store operations", "backend", "operation", "status"),
		historyOpsDuration: f.histogramVec("history_operation_duration_seconds", "Chat history store operation duration in seconds", prometheus.DefBuckets, "backend", "operation"),

		dbConnectionsOpen: f.gaugeVec("db_connections_open", "Number of open database connections", "database"),
		dbConnectionsIdle: f.gaugeVec("db_connections_idle", "Number of idle database connections", "database"),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// factory 给每个指标带上 namespace
type factory struct {
	ns   string
	auto promauto.Factory
}

func (f factory) counter(name, help string) prometheus.Counter {
	return f.auto.NewCounter(prometheus.CounterOpts{Namespace: f.ns, Name: name, Help: help})
}

func (f factory) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return f.auto.NewCounterVec(prometheus.CounterOpts{Namespace: f.ns, Name: name, Help: help}, labels)
}

func (f factory) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return f.auto.NewHistogramVec(prometheus.HistogramOpts{Namespace: f.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

func (f factory) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return f.auto.NewGaugeVec(prometheus.GaugeOpts{Namespace: f.ns, Name: name, Help: help}, labels)
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔀 中继指标记录
// =============================================================================

// RecordRelayRequest 记录一次中继请求的结果与上游响应头耗时。
// upstreamStatus 为 0 表示没有到达上游（未配置密钥、请求体非法、网络错误）。
func (c *Collector) RecordRelayRequest(outcome string, upstreamStatus int, headerWait time.Duration) {
	status := "none"
	if upstreamStatus > 0 {
		status = strconv.Itoa(upstreamStatus)
	}
	c.relayRequestsTotal.WithLabelValues(outcome, status).Inc()
	if upstreamStatus > 0 {
		c.relayUpstreamDuration.WithLabelValues(outcome).Observe(headerWait.Seconds())
	}
}

// RecordRelayStream 记录一次转发完成的 SSE 流
func (c *Collector) RecordRelayStream(bytes int64, fragments int, sawDone bool, duration time.Duration) {
	terminated := strconv.FormatBool(sawDone)
	c.relayStreamBytes.Add(float64(bytes))
	c.relayStreamFragments.Add(float64(fragments))
	c.relayStreamsTerminated.WithLabelValues(terminated).Inc()
	c.relayStreamDuration.WithLabelValues(terminated).Observe(duration.Seconds())
}

// =============================================================================
// 💬 会话指标记录
// =============================================================================

// RecordTurn 记录一次会话回合（ok / error / canceled / busy）
func (c *Collector) RecordTurn(outcome string) {
	c.sessionTurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordVoiceDuplicate 记录一次被抑制的重复语音消息
func (c *Collector) RecordVoiceDuplicate() {
	c.voiceDuplicatesDropped.Inc()
}

// =============================================================================
// 🗄️ 历史存储与数据库指标记录
// =============================================================================

// RecordHistoryOp 记录历史存储操作
func (c *Collector) RecordHistoryOp(backend, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.historyOpsTotal.WithLabelValues(backend, operation, status).Inc()
	c.historyOpsDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
