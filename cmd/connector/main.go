package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"dsconnector/pkg/audit"
	"dsconnector/pkg/auth"
	"dsconnector/pkg/hardening"
	"dsconnector/pkg/httpx"
	"dsconnector/pkg/metrics"
	"dsconnector/pkg/pattern"
	"dsconnector/pkg/ratelimit"
	"dsconnector/pkg/resources"
	"dsconnector/pkg/selfdesc"
	"dsconnector/pkg/store"
	"dsconnector/pkg/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	Resources           *resources.Service
	SelfDesc            *selfdesc.Builder
	Audit               *audit.Trail
	Metrics             *metrics.Registry
	MaxRequestBodyBytes int64
}

type connectorDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	openDBFn        func(context.Context) (connectorDB, func(), error)
	openRedisFn     func(context.Context) *redis.Client
	listenFn        func(*http.Server) error
)

func main() {
	if err := runConnector(initTelemetryFn, openDBFn, openRedisFn, listenFn); err != nil {
		logFatalf("connector: %v", err)
	}
}

func runConnector(
	initTelemetry func(context.Context, string) (func(context.Context) error, error),
	openDB func(context.Context) (connectorDB, func(), error),
	openRedis func(context.Context) *redis.Client,
	listen func(*http.Server) error,
) error {
	if initTelemetry == nil {
		initTelemetry = telemetry.Init
	}
	if openDB == nil {
		openDB = func(ctx context.Context) (connectorDB, func(), error) {
			pool, err := store.NewPostgresPool(ctx)
			if err != nil {
				return nil, nil, err
			}
			return pool, pool.Close, nil
		}
	}
	if openRedis == nil {
		openRedis = func(ctx context.Context) *redis.Client {
			client, err := store.NewRedis(ctx)
			if err != nil {
				log.Printf("connector: redis unavailable, using in-process fallbacks: %v", err)
				return nil
			}
			return client
		}
	}
	if listen == nil {
		listen = func(server *http.Server) error { return server.ListenAndServe() }
	}

	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "connector")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	db, closeDB, err := openDB(ctx)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}

	authCfg := auth.Config{
		Mode:     env("AUTH_MODE", "basic"),
		Username: env("AUTH_USERNAME", "admin"),
		Password: env("AUTH_PASSWORD", ""),
		Token:    env("AUTH_TOKEN", ""),
	}
	runtimeEnv := env("ENVIRONMENT", env("APP_ENV", ""))
	if err := hardening.ValidateProduction(hardening.Options{
		Service:               "connector",
		Environment:           runtimeEnv,
		StrictProdSecurity:    env("STRICT_PROD_SECURITY", "true"),
		DatabaseRequireTLS:    env("DATABASE_REQUIRE_TLS", ""),
		RedisAddr:             env("REDIS_ADDR", ""),
		RedisRequireTLS:       env("REDIS_REQUIRE_TLS", ""),
		RedisTLSInsecure:      env("REDIS_TLS_INSECURE", ""),
		RedisAllowInsecureTLS: env("REDIS_ALLOW_INSECURE_TLS", ""),
		CORSAllowedOrigins:    env("CORS_ALLOWED_ORIGINS", ""),
		RequiredSecrets: []hardening.EnvRequirement{
			{Name: "AUTH_PASSWORD", Value: authCfg.Password},
		},
	}); err != nil {
		return err
	}

	redisClient := openRedis(ctx)
	cache := store.NewCache(ctx, redisClient)

	svc := resources.NewService(db, cache, telemetry.InstrumentClient(nil))
	if err := svc.EnsureSchema(ctx); err != nil {
		return err
	}
	trail := &audit.Trail{DB: db}
	if err := trail.EnsureSchema(ctx); err != nil {
		return err
	}

	s := &Server{
		Resources: svc,
		Audit:     trail,
		SelfDesc: selfdesc.New(selfdesc.Config{
			ID:              env("CONNECTOR_ID", ""),
			Title:           env("CONNECTOR_TITLE", ""),
			Description:     env("CONNECTOR_DESCRIPTION", ""),
			Maintainer:      env("CONNECTOR_MAINTAINER", ""),
			Curator:         env("CONNECTOR_CURATOR", ""),
			Version:         env("CONNECTOR_VERSION", ""),
			DefaultEndpoint: env("CONNECTOR_ENDPOINT", ""),
			PublicKey:       env("CONNECTOR_PUBLIC_KEY", ""),
		}, svc),
		Metrics:             metrics.NewRegistry(),
		MaxRequestBodyBytes: int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
	}
	if s.MaxRequestBodyBytes <= 0 {
		s.MaxRequestBodyBytes = 1 << 20
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, time.Minute)
	} else {
		limiter = ratelimit.NewMemory(time.Minute)
	}

	r := s.router(authCfg, limiter, envInt("RATE_LIMIT_PER_MINUTE", 120))

	addr := env("ADDR", ":8080")
	log.Printf("connector listening on %s", addr)
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

func (s *Server) router(authCfg auth.Config, limiter ratelimit.Limiter, rateLimit int) chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(telemetry.HTTPMiddleware("connector"))
	r.Use(s.limitRequestBodyMiddleware)
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "connector"})
	})
	r.Get("/", s.publicSelfDescription)

	admin := chi.NewRouter()
	admin.Use(auth.Middleware(authCfg))
	admin.Use(ratelimit.Middleware(limiter, rateLimit))

	admin.Get("/selfservice", s.selfService)
	admin.Get("/example/configuration", s.exampleConfiguration)
	admin.Post("/example/policy-pattern", s.policyPattern)
	admin.Post("/example/usage-policy", s.usagePolicy)

	admin.Post("/resources", s.createResource)
	admin.Get("/resources", s.listResources)
	admin.Get("/resources/{id}", s.getResource)
	admin.Put("/resources/{id}", s.updateResource)
	admin.Delete("/resources/{id}", s.deleteResource)
	admin.Put("/resources/{id}/contract", s.setContract)
	admin.Get("/resources/{id}/contract", s.getContract)
	admin.Get("/resources/{id}/contract/rules", s.getContractRules)
	admin.Put("/resources/{id}/data", s.setData)
	admin.Get("/resources/{id}/data", s.getData)
	admin.Put("/resources/{id}/source", s.setSource)
	admin.Get("/resources/{id}/access", s.getAccessLog)

	admin.Get("/metrics", s.Metrics.Handler())
	r.Mount("/admin/api", admin)

	r.Get("/metrics", s.Metrics.PrometheusHandler())
	return r
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Metrics.Observe(r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func internalServerError(w http.ResponseWriter, op string, err error) {
	if err != nil {
		log.Printf("connector %s: %v", op, err)
	}
	httpx.Error(w, 500, "internal error")
}

func patternNames() []string {
	names := make([]string, 0, len(pattern.All()))
	for _, p := range pattern.All() {
		names = append(names, string(p))
	}
	return names
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
