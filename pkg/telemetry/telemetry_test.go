package telemetry

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
)

func TestInitWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), "connector")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitDefaultsServiceName(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), "  ")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestParseSampler(t *testing.T) {
	if s := parseSampler("always_on", ""); s.Description() != trace.AlwaysSample().Description() {
		t.Fatalf("unexpected sampler %s", s.Description())
	}
	if s := parseSampler("always_off", ""); s.Description() != trace.NeverSample().Description() {
		t.Fatalf("unexpected sampler %s", s.Description())
	}
	// Out-of-range ratios clamp instead of failing.
	if s := parseSampler("traceidratio", "7"); s == nil {
		t.Fatal("expected sampler")
	}
	if s := parseSampler("", "0.25"); s == nil {
		t.Fatal("expected default sampler")
	}
}

func TestParseHeaders(t *testing.T) {
	out := parseHeaders("a=1, b = 2 ,broken,=skipme")
	if len(out) != 2 || out["a"] != "1" || out["b"] != "2" {
		t.Fatalf("unexpected headers: %v", out)
	}
	if parseHeaders("  ") != nil {
		t.Fatal("expected nil for blank input")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	mw := HTTPMiddleware("")
	if mw == nil {
		t.Fatal("expected middleware")
	}
}

func TestInstrumentClient(t *testing.T) {
	client := InstrumentClient(nil)
	if client == nil || client.Transport == nil {
		t.Fatal("expected instrumented client")
	}
	custom := &http.Client{}
	if got := InstrumentClient(custom); got.Transport == nil {
		t.Fatal("expected wrapped transport")
	}
}
