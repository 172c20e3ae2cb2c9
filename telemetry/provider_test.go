package telemetry

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracer_NilProvider(t *testing.T) {
	tracer := Tracer(nil)
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}
}

func TestTracer_WithProvider(t *testing.T) {
	tracer := Tracer(noop.NewTracerProvider())
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}
}

func TestSetupPropagation(t *testing.T) {
	orig := otel.GetTextMapPropagator()
	defer otel.SetTextMapPropagator(orig)

	SetupPropagation()

	want := map[string]bool{"traceparent": false, "X-Amzn-Trace-Id": false}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, found := range want {
		if !found {
			t.Errorf("expected propagator to handle %q", f)
		}
	}
}

func TestInjectHeaders(t *testing.T) {
	orig := otel.GetTextMapPropagator()
	defer otel.SetTextMapPropagator(orig)
	SetupPropagation()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := Tracer(tp).Start(context.Background(), "live.connect")
	h := http.Header{}
	InjectHeaders(ctx, h)
	span.End()

	if h.Get("traceparent") == "" {
		t.Error("expected traceparent header")
	}
	if h.Get("X-Amzn-Trace-Id") == "" {
		t.Error("expected X-Amzn-Trace-Id header")
	}
	if got := len(recorder.Ended()); got != 1 {
		t.Errorf("expected 1 ended span, got %d", got)
	}
}

func TestInjectHeaders_NoSpan(t *testing.T) {
	orig := otel.GetTextMapPropagator()
	defer otel.SetTextMapPropagator(orig)
	SetupPropagation()

	h := http.Header{}
	InjectHeaders(context.Background(), h)
	if h.Get("traceparent") != "" {
		t.Errorf("expected no traceparent, got %q", h.Get("traceparent"))
	}
}

func TestSetup_EmptyEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewTracerProvider(t *testing.T) {
	tp, err := NewTracerProvider(t.Context(), "http://localhost:0/v1/traces", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = tp.Shutdown(t.Context()) }()

	if tp == nil {
		t.Fatal("expected non-nil provider")
	}
}
