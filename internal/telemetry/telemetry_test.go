package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatdesk/internal/config"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "telemetry")
	tel, err := Init(context.Background(), config.TelemetryConfig{Enabled: false, Dir: dir}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, span := tel.Tracer.Start(context.Background(), "chat.turn")
	tel.RecordRequest(ctx, "openai", "deepseek-chat", time.Second, true)
	tel.AddFragments(ctx, 3)
	tel.RecordSave(ctx, "json")
	span.End()
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("disabled telemetry should not create %s", dir)
	}
}

func TestInit_EnabledWritesTraces(t *testing.T) {
	dir := t.TempDir()
	tel, err := Init(context.Background(), config.TelemetryConfig{
		Enabled:            true,
		Dir:                dir,
		ServiceName:        "chatdesk-test",
		MetricIntervalSecs: 60,
	}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := tel.Tracer.Start(context.Background(), "chat.turn")
	span.End()
	tel.RecordSave(context.Background(), "sqlite")
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "traces.log"))
	if err != nil {
		t.Fatalf("read traces: %v", err)
	}
	if !strings.Contains(string(data), "chat.turn") {
		t.Fatalf("trace file missing span: %s", data)
	}
	metrics, err := os.ReadFile(filepath.Join(dir, "metrics.log"))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metrics), "session.saves") {
		t.Fatalf("metrics file missing counter: %s", metrics)
	}
}

func TestNoopShutdown(t *testing.T) {
	var nilTel *Telemetry
	if err := nilTel.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil Shutdown: %v", err)
	}
	if err := Noop().Shutdown(context.Background()); err != nil {
		t.Fatalf("Noop Shutdown: %v", err)
	}
}
