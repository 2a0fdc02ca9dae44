package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.relayRequestsTotal)
	assert.NotNil(t, collector.relayStreamBytes)
	assert.NotNil(t, collector.historyOpsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/api/v1/chat", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/api/v1/chat", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/api/v1/chat", 429, 5*time.Millisecond, 512, 64)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/chat", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/chat", "4xx")))
}

func TestCollector_RecordRelayRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRelayRequest("ok", 200, 300*time.Millisecond)
	collector.RecordRelayRequest("rate_limited", 429, 20*time.Millisecond)
	collector.RecordRelayRequest("not_configured", 0, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.relayRequestsTotal.WithLabelValues("ok", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.relayRequestsTotal.WithLabelValues("rate_limited", "429")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.relayRequestsTotal.WithLabelValues("not_configured", "none")))

	// 未到达上游的请求不记录响应头耗时
	assert.Equal(t, 2, testutil.CollectAndCount(collector.relayUpstreamDuration))
}

func TestCollector_RecordRelayStream(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRelayStream(120, 3, true, time.Second)
	collector.RecordRelayStream(30, 1, false, 2*time.Second)

	assert.Equal(t, float64(150), testutil.ToFloat64(collector.relayStreamBytes))
	assert.Equal(t, float64(4), testutil.ToFloat64(collector.relayStreamFragments))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.relayStreamsTerminated.WithLabelValues("true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.relayStreamsTerminated.WithLabelValues("false")))
}

func TestCollector_RecordTurnAndDuplicates(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTurn("ok")
	collector.RecordTurn("ok")
	collector.RecordTurn("error")
	collector.RecordVoiceDuplicate()

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.sessionTurnsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.sessionTurnsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.voiceDuplicatesDropped))
}

func TestCollector_RecordHistoryOp(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHistoryOp("redis", "save", nil, 2*time.Millisecond)
	collector.RecordHistoryOp("redis", "save", errors.New("boom"), 3*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.historyOpsTotal.WithLabelValues("redis", "save", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.historyOpsTotal.WithLabelValues("redis", "save", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.historyOpsDuration))
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 0, 64)
			collector.RecordRelayStream(10, 1, true, time.Millisecond)
			collector.RecordHistoryOp("memory", "history", nil, time.Microsecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(100), testutil.ToFloat64(collector.relayStreamBytes))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.historyOpsTotal.WithLabelValues("memory", "history", "ok")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	registry.MustRegister(collector.relayRequestsTotal)
	collector.RecordRelayRequest("ok", 200, time.Millisecond)

	count, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(402))
	assert.Equal(t, "5xx", statusCode(502))
	assert.Equal(t, "unknown", statusCode(0))
}
