// backend-mock stands in for a provider's data system during local
// development: it serves a sample payload for resource source URLs and
// accepts the usage notifications that notify duties point at.
package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"dsconnector/pkg/httpx"
	"dsconnector/pkg/telemetry"

	"github.com/go-chi/chi/v5"
)

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	listenFn        = func(server *http.Server) error { return server.ListenAndServe() }
)

func main() {
	if err := runBackendMock(initTelemetryFn, listenFn); err != nil {
		logFatalf("backend-mock: %v", err)
	}
}

type mock struct {
	username      string
	password      string
	payload       string
	notifications atomic.Int64
}

func (m *mock) handleData(w http.ResponseWriter, r *http.Request) {
	if m.username != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || !secureEqual(user, m.username) || !secureEqual(pass, m.password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="backend-mock"`)
			httpx.Error(w, 401, "unauthorized")
			return
		}
	}
	payload := m.payload
	if key := r.URL.Query().Get("key"); key != "" {
		payload = payload + " (" + key + ")"
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(200)
	_, _ = w.Write([]byte(payload))
}

func (m *mock) handleNotification(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	n := m.notifications.Add(1)
	log.Printf("backend-mock usage notification #%d received", n)
	httpx.WriteJSON(w, 200, map[string]any{"status": "received", "count": n})
}

func (m *mock) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, 200, map[string]any{
		"status":        "ok",
		"service":       "backend-mock",
		"notifications": m.notifications.Load(),
	})
}

func secureEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

func runBackendMock(
	initTelemetry func(context.Context, string) (func(context.Context) error, error),
	listen func(*http.Server) error,
) error {
	if initTelemetry == nil {
		initTelemetry = telemetry.Init
	}
	if listen == nil {
		listen = func(server *http.Server) error { return server.ListenAndServe() }
	}

	shutdown, err := initTelemetry(context.Background(), "backend-mock")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	m := &mock{
		username: env("BACKEND_USERNAME", ""),
		password: env("BACKEND_PASSWORD", ""),
		payload:  env("BACKEND_PAYLOAD", "sample resource payload"),
	}

	r := chi.NewRouter()
	r.Use(telemetry.HTTPMiddleware("backend-mock"))
	r.Get("/healthz", m.handleStatus)
	r.Get("/data", m.handleData)
	r.Post("/api/ids/data", m.handleNotification)

	addr := env("ADDR", ":8000")
	log.Printf("backend-mock listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	return listen(server)
}
