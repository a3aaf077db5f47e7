package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chatdesk/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const instrumentationName = "chatdesk"

// Telemetry 持有 tracer 与各项指标；未启用时全部为全局 no-op 实现
// Telemetry holds the tracer and instruments. When disabled they come from the global
// no-op providers.
type Telemetry struct {
	Tracer trace.Tracer

	requestDuration metric.Float64Histogram
	fragments       metric.Int64Counter
	saves           metric.Int64Counter

	shutdown func(context.Context) error
}

// Init 启用时把 trace 与 metric 以 JSON 写入滚动文件
// Init exports traces and metrics as JSON into rotated files when enabled.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string) (*Telemetry, error) {
	if !cfg.Enabled {
		return newTelemetry(otel.Tracer(instrumentationName), otel.Meter(instrumentationName), nil)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = instrumentationName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	traceFile := rotatedFile(filepath.Join(cfg.Dir, "traces.log"))
	metricsFile := rotatedFile(filepath.Join(cfg.Dir, "metrics.log"))

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	interval := time.Duration(cfg.MetricIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval)),
		),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown meter provider", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		for _, f := range []io.Closer{traceFile, metricsFile} {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return newTelemetry(tp.Tracer(instrumentationName), mp.Meter(instrumentationName), shutdown)
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter, shutdown func(context.Context) error) (*Telemetry, error) {
	t := &Telemetry{Tracer: tracer, shutdown: shutdown}
	var err error
	t.requestDuration, err = meter.Float64Histogram(
		"chat.request.duration",
		metric.WithDescription("Streaming chat request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}
	t.fragments, err = meter.Int64Counter(
		"chat.fragments",
		metric.WithDescription("Text fragments received from the model"),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	t.saves, err = meter.Int64Counter(
		"session.saves",
		metric.WithDescription("Session documents written"),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	return t, nil
}

// Noop 不导出任何数据的 Telemetry / a Telemetry that exports nothing
func Noop() *Telemetry {
	t, err := newTelemetry(otel.Tracer(instrumentationName), otel.Meter(instrumentationName), nil)
	if err != nil {
		// 全局 no-op meter 不会失败 / the global no-op meter cannot fail
		panic(err)
	}
	return t
}

func (t *Telemetry) RecordRequest(ctx context.Context, provider, model string, d time.Duration, ok bool) {
	t.requestDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("ok", ok),
	))
}

func (t *Telemetry) AddFragments(ctx context.Context, n int) {
	if n > 0 {
		t.fragments.Add(ctx, int64(n))
	}
}

func (t *Telemetry) RecordSave(ctx context.Context, backend string) {
	t.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}

// Shutdown 刷新并关闭导出器；未启用时为空操作
// Shutdown flushes and closes the exporters; a no-op when disabled.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return t.shutdown(ctx)
}

func rotatedFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}
