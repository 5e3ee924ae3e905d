package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDefaultPostgresURL(t *testing.T) {
	t.Setenv("DATABASE_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("DATABASE_HOST", "")
	t.Setenv("DATABASE_PORT", "")
	t.Setenv("DATABASE_NAME", "")
	t.Setenv("DATABASE_SSLMODE", "")
	url := postgresURLFromEnv()
	if !strings.HasPrefix(url, "postgres://connector@localhost:5432/connector") {
		t.Fatalf("unexpected default url %q", url)
	}
	if !strings.Contains(url, "sslmode=disable") {
		t.Fatalf("expected sslmode=disable in %q", url)
	}
}

func TestDefaultPostgresURLWithPassword(t *testing.T) {
	t.Setenv("DATABASE_USER", "svc")
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_PORT", "bogus")
	t.Setenv("DATABASE_NAME", "meta")
	t.Setenv("DATABASE_SSLMODE", "require")
	url := postgresURLFromEnv()
	if !strings.Contains(url, "svc:s3cret@db.internal:5432/meta") {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestValidatePostgresTLS(t *testing.T) {
	if err := validatePostgresTLS("postgres://u@h:5432/db?sslmode=require"); err != nil {
		t.Fatalf("expected require to pass: %v", err)
	}
	if err := validatePostgresTLS("postgres://u@h:5432/db?sslmode=disable"); err == nil {
		t.Fatal("expected disable to fail")
	}
	if err := validatePostgresTLS("postgres://u@h:5432/db"); err == nil {
		t.Fatal("expected missing sslmode to fail")
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(context.Background(), client)
	if _, ok := cache.(*RedisCache); !ok {
		t.Fatalf("expected redis cache, got %T", cache)
	}
	ctx := context.Background()
	if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := cache.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("expected v, got %q", got)
	}
	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestCacheFallsBackToMemory(t *testing.T) {
	cache := NewCache(context.Background(), nil)
	if _, ok := cache.(*MemoryCache); !ok {
		t.Fatalf("expected memory cache, got %T", cache)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()
	if err := cache.Set(ctx, "k", "v", -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestNewRedisAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("REDIS_TLS", "")
	t.Setenv("REDIS_REQUIRE_TLS", "")
	client, err := NewRedis(context.Background())
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNewRedisRequireTLSWithoutTLS(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TLS", "")
	t.Setenv("REDIS_REQUIRE_TLS", "true")
	if _, err := NewRedis(context.Background()); err == nil {
		t.Fatal("expected error when TLS required but not enabled")
	}
}
