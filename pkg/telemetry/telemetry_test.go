// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/declagent/pkg/core"
)

func TestInitStdout(t *testing.T) {
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: ExporterStdout, Writer: io.Discard})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestInitNone(t *testing.T) {
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestInitRejectsBadConfig(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Exporter: "carrier-pigeon"}, "unknown telemetry exporter"},
		{Config{Exporter: ExporterOTLP}, "otlp endpoint is required"},
	}
	for _, tc := range cases {
		_, err := InitWithConfig("svc", "v", tc.cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("exporter %q: expected error containing %q, got %v", tc.cfg.Exporter, tc.want, err)
		}
	}
}

func TestConfigureSlogInjectsTraceIDs(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span")
	span.End()
	logger.Debug("outside span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	if want := `"trace_id":"` + span.SpanContext().TraceID().String() + `"`; !strings.Contains(lines[0], want) {
		t.Errorf("expected %s in %s", want, lines[0])
	}
	if !strings.Contains(lines[0], `"span_id":"`) {
		t.Errorf("expected span_id in %s", lines[0])
	}
	if strings.Contains(lines[1], "trace_id") {
		t.Errorf("unexpected trace_id outside a span: %s", lines[1])
	}
}

func TestLoggerStampsRunAndAgent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "text")

	ctx := core.WithAgentID(core.WithRunID(context.Background(), "run-1"), "ping")
	logger.InfoContext(ctx, "step done")
	logger.InfoContext(ctx, "explicit", slog.String("run_id", "other"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	for _, want := range []string{"run_id=run-1", "agent=ping"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("expected %s in %s", want, lines[0])
		}
	}
	if !strings.Contains(lines[1], "run_id=other") || strings.Contains(lines[1], "run_id=run-1") {
		t.Errorf("explicit run_id should win: %s", lines[1])
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
