package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterWindow(t *testing.T) {
	l := NewMemory(time.Minute)
	for i := 1; i <= 3; i++ {
		d := l.Allow("client", 3)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if d.Remaining != 3-i {
			t.Fatalf("request %d: remaining = %d, want %d", i, d.Remaining, 3-i)
		}
	}
	d := l.Allow("client", 3)
	if d.Allowed {
		t.Fatal("fourth request should be denied")
	}
	if d.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", d.Remaining)
	}
}

func TestMemoryLimiterIsolatesKeys(t *testing.T) {
	l := NewMemory(time.Minute)
	l.Allow("a", 1)
	if d := l.Allow("b", 1); !d.Allowed {
		t.Fatal("key b should start with a fresh window")
	}
}

func TestMemoryLimiterExpiry(t *testing.T) {
	l := NewMemory(10 * time.Millisecond)
	l.Allow("client", 1)
	if d := l.Allow("client", 1); d.Allowed {
		t.Fatal("second request inside window should be denied")
	}
	time.Sleep(20 * time.Millisecond)
	if d := l.Allow("client", 1); !d.Allowed {
		t.Fatal("request after window reset should be allowed")
	}
}

func TestMemoryLimiterDefaults(t *testing.T) {
	l := NewMemory(0)
	if l.window != time.Minute {
		t.Fatalf("window = %v, want 1m", l.window)
	}
	d := l.Allow("client", 0)
	if !d.Allowed || d.Limit != 1 {
		t.Fatalf("zero limit should clamp to 1, got %+v", d)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedis(client, time.Minute)
	for i := 1; i <= 2; i++ {
		if d := l.Allow("client", 2); !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if d := l.Allow("client", 2); d.Allowed {
		t.Fatal("third request should be denied")
	}
	if !mr.Exists("connector:rl:client") {
		t.Fatal("expected prefixed redis key")
	}
}

func TestRedisLimiterFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedis(client, time.Minute)
	mr.Close()

	l.Allow("client", 1)
	if d := l.Allow("client", 1); d.Allowed {
		t.Fatal("fallback limiter should carry the count")
	}
}

func TestRedisLimiterNilClient(t *testing.T) {
	l := NewRedis(nil, time.Minute)
	if d := l.Allow("client", 5); !d.Allowed {
		t.Fatalf("nil client should use fallback, got %+v", d)
	}

	l.Fallback = nil
	if d := l.Allow("client", 5); !d.Allowed {
		t.Fatal("no fallback should fail open")
	}
}

func TestMiddleware(t *testing.T) {
	l := NewMemory(time.Minute)
	h := Middleware(l, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/api/example/usage-policy", nil)
	req.RemoteAddr = "10.1.2.3:4444"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request: status = %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatal("missing X-RateLimit-Limit header")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestMiddlewareClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4444"
	if got := clientKey(req); got != "10.1.2.3" {
		t.Fatalf("clientKey = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := clientKey(req); got != "203.0.113.7" {
		t.Fatalf("clientKey with forwarded header = %q", got)
	}
	req.Header.Del("X-Forwarded-For")
	req.RemoteAddr = "badaddr"
	if got := clientKey(req); got != "badaddr" {
		t.Fatalf("clientKey with malformed addr = %q", got)
	}
}

func TestMiddlewareNilLimiter(t *testing.T) {
	h := Middleware(nil, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("nil limiter should pass through, got %d", rec.Code)
	}
}
