// Package auth guards the connector admin API. The original deployment
// profile uses a single operator account over basic auth, optionally a
// static bearer token for machine clients.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

type Principal struct {
	Subject string
	Roles   []string
}

type contextKey string

const principalContextKey contextKey = "connector.principal"

type Config struct {
	Mode     string // "off", "basic", "token"
	Username string
	Password string
	Token    string
}

func Middleware(cfg Config) func(http.Handler) http.Handler {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" || mode == "off" {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), Principal{Subject: "anonymous", Roles: []string{"anonymous"}})))
			})
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				p  Principal
				ok bool
			)
			switch mode {
			case "basic":
				p, ok = verifyBasic(r, cfg.Username, cfg.Password)
			case "token":
				p, ok = verifyToken(r, cfg.Token)
			}
			if !ok {
				if mode == "basic" {
					w.Header().Set("WWW-Authenticate", `Basic realm="connector"`)
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func verifyBasic(r *http.Request, username, password string) (Principal, bool) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return Principal{}, false
	}
	if !constantTimeEqual(user, username) || !constantTimeEqual(pass, password) {
		return Principal{}, false
	}
	return Principal{Subject: user, Roles: []string{"admin"}}, true
}

func verifyToken(r *http.Request, token string) (Principal, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return Principal{}, false
	}
	presented := strings.TrimSpace(header[len("Bearer "):])
	if token == "" || !constantTimeEqual(presented, token) {
		return Principal{}, false
	}
	return Principal{Subject: "api-client", Roles: []string{"admin"}}, true
}

// constantTimeEqual hashes both sides first so comparison time does not
// leak the secret length.
func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalContextKey)
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
