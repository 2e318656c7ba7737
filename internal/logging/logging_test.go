package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "catalog")).Info(context.Background(), "satellite created",
		String("satellite_id", "iss"),
		Float64("altitude", 408),
		Bool("active", true),
		Duration("took", 3*time.Millisecond),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	checks := map[string]any{
		"msg":          "satellite created",
		"component":    "catalog",
		"satellite_id": "iss",
		"altitude":     408.0,
		"active":       true,
		"error":        "boom",
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Fatalf("field %s = %v, want %v", k, rec[k], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTraceIDsAreAttached(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Output: &buf})

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.Info(ctx, "traced")
	if !strings.Contains(buf.String(), traceID.String()) {
		t.Fatalf("trace id missing from %q", buf.String())
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatal("EnsureRequestID returned empty id")
	}
	again, same := EnsureRequestID(ctx)
	if same != id || RequestIDFromContext(again) != id {
		t.Fatalf("existing id was replaced: %q vs %q", same, id)
	}

	ctx = ContextWithRequestID(context.Background(), "fixed")
	ctx, l := WithRequestLogger(ctx, nil)
	if RequestIDFromContext(ctx) != "fixed" || l == nil {
		t.Fatalf("WithRequestLogger lost the request id")
	}
}

func TestLoggerFromContextFallback(t *testing.T) {
	if got := LoggerFromContext(context.Background(), nil); got == nil {
		t.Fatal("expected noop logger fallback")
	}
	stored := Noop().With(String("k", "v"))
	ctx := ContextWithLogger(context.Background(), stored)
	if got := LoggerFromContext(ctx, nil); got != stored {
		t.Fatalf("LoggerFromContext = %v, want stored logger", got)
	}
}
