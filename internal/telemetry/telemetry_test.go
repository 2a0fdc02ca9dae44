package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/naya/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders 测试结束时恢复全局 provider
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.ServiceName = "naya-test"

	p, err := Init(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	// 没有 collector 时导出可能失败，只要求在期限内返回
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制的版本是 (devel)
	assert.Equal(t, "dev", BuildVersion())
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRelayInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	ri, err := NewRelayInstruments(mp.Meter(InstrumentationName))
	require.NoError(t, err)

	ri.RecordRelayRequest("ok", 200, 120*time.Millisecond)
	ri.RecordRelayRequest("ok", 200, 80*time.Millisecond)
	ri.RecordRelayRequest("rate_limited", 429, 0)
	ri.RecordRelayStream(512, 7, true, 2*time.Second)

	got := collect(t, reader)

	requests, ok := got["naya.relay.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range requests.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, requests.DataPoints, 2, "one series per outcome/status")

	header, ok := got["naya.relay.header_wait"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, header.DataPoints, 1)
	assert.Equal(t, uint64(2), header.DataPoints[0].Count)

	fragments, ok := got["naya.relay.stream.fragments"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, fragments.DataPoints, 1)
	assert.Equal(t, int64(7), fragments.DataPoints[0].Value)

	bytes, ok := got["naya.relay.stream.bytes"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(512), bytes.DataPoints[0].Value)
}

func TestNewRelayInstruments_GlobalMeter(t *testing.T) {
	ri, err := NewRelayInstruments(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		ri.RecordRelayRequest("ok", 200, time.Millisecond)
		ri.RecordRelayStream(1, 1, false, time.Millisecond)
	})
}
