package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/xlimport/internal/config"
)

type ctxKey int

const ctxKeyClient ctxKey = iota

// ClientFromContext returns the name of the API key that authenticated the
// request, or "" when auth is disabled.
func ClientFromContext(ctx context.Context) string {
	name, _ := ctx.Value(ctxKeyClient).(string)
	return name
}

// APIKeyAuth returns middleware that validates the X-API-Key header against
// the configured keys and records the key's client name in the context.
// If RequireAPIKey is false, all requests pass through.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys, err := cfg.APIKeyNames()
	if err != nil {
		// Validate rejects this at startup; fail closed if it slips through.
		slog.Error("auth: invalid API_KEYS, rejecting all requests", "error", err)
		keys = nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			name, ok := matchAPIKey(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClient, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// matchAPIKey returns the client name of the key equal to key.
// Every configured key is compared in constant time, so the time taken does
// not depend on which key matched.
func matchAPIKey(key string, keys map[string]string) (string, bool) {
	var name string
	matched := 0
	for validKey, client := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			name = client
			matched = 1
		}
	}
	return name, matched == 1
}

func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"` + code + `"}`))
}
