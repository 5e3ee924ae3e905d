package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func noopTelemetry(ctx context.Context, service string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

func fakeOpenDB(db connectorDB) func(context.Context) (connectorDB, func(), error) {
	return func(context.Context) (connectorDB, func(), error) {
		return db, func() {}, nil
	}
}

func noRedis(context.Context) *redis.Client { return nil }

func TestRunConnectorWiresRoutes(t *testing.T) {
	var captured *http.Server
	listen := func(server *http.Server) error {
		captured = server
		return nil
	}

	if err := runConnector(noopTelemetry, fakeOpenDB(&fakeDB{}), noRedis, listen); err != nil {
		t.Fatalf("runConnector: %v", err)
	}
	if captured == nil {
		t.Fatal("listen was not called")
	}
	if captured.Addr != ":8080" {
		t.Fatalf("addr = %q", captured.Addr)
	}
	if captured.ReadHeaderTimeout != 5*time.Second || captured.WriteTimeout != 30*time.Second {
		t.Fatalf("timeouts = %v / %v", captured.ReadHeaderTimeout, captured.WriteTimeout)
	}

	rec := httptest.NewRecorder()
	captured.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("healthz through wired handler: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	captured.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != 200 {
		t.Fatalf("public self-description: status = %d", rec.Code)
	}
}

func TestRunConnectorCustomAddr(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	var captured *http.Server
	listen := func(server *http.Server) error {
		captured = server
		return nil
	}
	if err := runConnector(noopTelemetry, fakeOpenDB(&fakeDB{}), noRedis, listen); err != nil {
		t.Fatalf("runConnector: %v", err)
	}
	if captured.Addr != ":9999" {
		t.Fatalf("addr = %q", captured.Addr)
	}
}

func TestRunConnectorTelemetryError(t *testing.T) {
	failing := func(ctx context.Context, service string) (func(context.Context) error, error) {
		return nil, errors.New("exporter unreachable")
	}
	err := runConnector(failing, fakeOpenDB(&fakeDB{}), noRedis, func(*http.Server) error { return nil })
	if err == nil {
		t.Fatal("expected telemetry error")
	}
}

func TestRunConnectorDBError(t *testing.T) {
	openDB := func(context.Context) (connectorDB, func(), error) {
		return nil, nil, errors.New("no database")
	}
	err := runConnector(noopTelemetry, openDB, noRedis, func(*http.Server) error { return nil })
	if err == nil || err.Error() != "no database" {
		t.Fatalf("err = %v", err)
	}
}

func TestRunConnectorSchemaError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	err := runConnector(noopTelemetry, fakeOpenDB(db), noRedis, func(*http.Server) error { return nil })
	if err == nil {
		t.Fatal("expected schema error")
	}
}

func TestRunConnectorHardeningBlocksProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	err := runConnector(noopTelemetry, fakeOpenDB(&fakeDB{}), noRedis, func(*http.Server) error { return nil })
	if err == nil {
		t.Fatal("production without TLS or secrets must fail startup")
	}
}

func TestRunConnectorProductionConfigured(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_REQUIRE_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://connector.example.com")
	t.Setenv("AUTH_PASSWORD", "strongpassword")
	if err := runConnector(noopTelemetry, fakeOpenDB(&fakeDB{}), noRedis, func(*http.Server) error { return nil }); err != nil {
		t.Fatalf("configured production should start: %v", err)
	}
}

func TestMainReportsFatal(t *testing.T) {
	origFatal := logFatalf
	origDB := openDBFn
	origTelemetry := initTelemetryFn
	origListen := listenFn
	defer func() {
		logFatalf = origFatal
		openDBFn = origDB
		initTelemetryFn = origTelemetry
		listenFn = origListen
	}()

	var got string
	logFatalf = func(format string, args ...any) { got = format }
	initTelemetryFn = noopTelemetry
	openDBFn = func(context.Context) (connectorDB, func(), error) {
		return nil, nil, errors.New("boom")
	}
	listenFn = func(*http.Server) error { return nil }

	main()
	if got == "" {
		t.Fatal("expected fatal log on startup failure")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CONNECTOR_TEST_ENV", "x")
	if got := env("CONNECTOR_TEST_ENV", "y"); got != "x" {
		t.Fatalf("env = %q", got)
	}
	if got := env("CONNECTOR_TEST_ENV_MISSING", "y"); got != "y" {
		t.Fatalf("env fallback = %q", got)
	}
	t.Setenv("CONNECTOR_TEST_INT", "42")
	if got := envInt("CONNECTOR_TEST_INT", 7); got != 42 {
		t.Fatalf("envInt = %d", got)
	}
	t.Setenv("CONNECTOR_TEST_INT", "bad")
	if got := envInt("CONNECTOR_TEST_INT", 7); got != 7 {
		t.Fatalf("envInt fallback = %d", got)
	}
	t.Setenv("CONNECTOR_TEST_DUR", "3")
	if got := envDurationSec("CONNECTOR_TEST_DUR", 1); got != 3*time.Second {
		t.Fatalf("envDurationSec = %v", got)
	}
}

func TestPatternNames(t *testing.T) {
	names := patternNames()
	if len(names) != 9 {
		t.Fatalf("len(names) = %d", len(names))
	}
	found := false
	for _, n := range names {
		if n == "USAGE_UNTIL_DELETION" {
			found = true
		}
	}
	if !found {
		t.Fatal("missing USAGE_UNTIL_DELETION")
	}
}
