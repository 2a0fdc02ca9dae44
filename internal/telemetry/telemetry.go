// =============================================================================
// 📡 Naya OpenTelemetry 初始化
// =============================================================================
// 封装 traces 与 metrics 的 SDK 初始化。未启用时不创建任何导出器，
// 全局 provider 保持 noop，中继与中间件里的 span 只是空操作。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/BaSui01/naya/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// InstrumentationName 本仓库 tracer / meter 的名称
const InstrumentationName = "github.com/BaSui01/naya"

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider。
// 未启用时两者都为 nil，Shutdown 为空操作。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 启用时创建 OTLP/gRPC 导出器并替换全局 provider；
// 未启用时返回空 Providers，全局仍是 noop
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(BuildVersion()),
	))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	p, err := newProviders(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate))
	return p, nil
}

// newProviders 网关和中继都在集群内，导出走明文 gRPC
func newProviders(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*Providers, error) {
	spans, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), spans.Shutdown(ctx))
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	return &Providers{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans), sdktrace.WithResource(res), sdktrace.WithSampler(sampler)),
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics)), sdkmetric.WithResource(res)),
	}, nil
}

// Enabled 是否创建了真实的 provider
func (p *Providers) Enabled() bool {
	return p != nil && p.tp != nil
}

// Shutdown 刷出未发送的 span / 指标并关闭导出器
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// BuildVersion 从构建信息读取模块版本，读不到时返回 "dev"
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// =============================================================================
// 📈 中继 OTel 指标
// =============================================================================

// RelayInstruments 用 OTel metric API 记录中继请求与流，与 Prometheus 收集器并行
type RelayInstruments struct {
	requests  metric.Int64Counter
	headerDur metric.Float64Histogram
	bytes     metric.Int64Counter
	fragments metric.Int64Counter
	streamDur metric.Float64Histogram
}

// NewRelayInstruments 在给定 meter 上创建仪表；meter 为 nil 时取全局 provider
func NewRelayInstruments(meter metric.Meter) (*RelayInstruments, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	var (
		ri  RelayInstruments
		err error
	)
	if ri.requests, err = meter.Int64Counter("naya.relay.requests",
		metric.WithDescription("Relay requests by outcome")); err != nil {
		return nil, err
	}
	if ri.headerDur, err = meter.Float64Histogram("naya.relay.header_wait",
		metric.WithDescription("Time until the gateway returned response headers"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if ri.bytes, err = meter.Int64Counter("naya.relay.stream.bytes",
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if ri.fragments, err = meter.Int64Counter("naya.relay.stream.fragments"); err != nil {
		return nil, err
	}
	if ri.streamDur, err = meter.Float64Histogram("naya.relay.stream.duration",
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &ri, nil
}

// RecordRelayRequest 实现 relay.Recorder
func (ri *RelayInstruments) RecordRelayRequest(outcome string, upstreamStatus int, headerWait time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("upstream_status", upstreamStatus),
	)
	ri.requests.Add(ctx, 1, attrs)
	if headerWait > 0 {
		ri.headerDur.Record(ctx, headerWait.Seconds(), attrs)
	}
}

// RecordRelayStream 实现 relay.Recorder
func (ri *RelayInstruments) RecordRelayStream(bytes int64, fragments int, sawDone bool, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Bool("saw_done", sawDone))
	ri.bytes.Add(ctx, bytes, attrs)
	ri.fragments.Add(ctx, int64(fragments), attrs)
	ri.streamDur.Record(ctx, duration.Seconds(), attrs)
}
