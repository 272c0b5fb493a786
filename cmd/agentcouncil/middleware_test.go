package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentcouncil/config"
	"github.com/BaSui01/agentcouncil/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error.Code
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := Chain(inner, SecurityHeaders(), RequestID())

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		assert.Equal(t, w.Header().Get("X-Request-ID"), seen)
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("propagated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/test", nil)
		r.Header.Set("X-Request-ID", "req-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "req-123", seen)
	})
}

func TestRecovery(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Recovery(zap.NewNop())(inner)

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(types.ErrInternalError), errorCode(t, w))
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"secret"}, []string{"/health"}, true, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "header key", target: "/api/v1/agents", header: "secret", want: http.StatusOK},
		{name: "query key", target: "/api/v1/agents?api_key=secret", want: http.StatusOK},
		{name: "wrong key", target: "/api/v1/agents", header: "nope", want: http.StatusUnauthorized},
		{name: "missing key", target: "/api/v1/agents", want: http.StatusUnauthorized},
		{name: "skip path", target: "/health", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, string(types.ErrAuthentication), errorCode(t, w))
			}
		})
	}

	t.Run("query key disabled", func(t *testing.T) {
		strict := APIKeyAuth([]string{"secret"}, nil, false, zap.NewNop())(okHandler())
		w := httptest.NewRecorder()
		strict.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents?api_key=secret", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cr3t", Issuer: "council", Audience: "api"}

	var (
		tenant string
		user   string
		roles  []string
	)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ = types.TenantID(r.Context())
		user, _ = types.UserID(r.Context())
		roles, _ = types.Roles(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := JWTAuth(cfg, []string{"/healthz"}, zap.NewNop())(inner)

	valid := jwt.MapClaims{
		"iss":       "council",
		"aud":       "api",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant_id": "t-1",
		"user_id":   "u-1",
		"roles":     []string{"admin", "viewer"},
	}

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
		r.Header.Set("Authorization", "Bearer "+signHS256(t, cfg.Secret, valid))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "t-1", tenant)
		assert.Equal(t, "u-1", user)
		assert.Equal(t, []string{"admin", "viewer"}, roles)
	})

	rejected := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{name: "missing header", token: func(t *testing.T) string { return "" }},
		{name: "wrong secret", token: func(t *testing.T) string { return signHS256(t, "other", valid) }},
		{name: "expired", token: func(t *testing.T) string {
			c := jwt.MapClaims{"iss": "council", "aud": "api", "exp": time.Now().Add(-time.Minute).Unix()}
			return signHS256(t, cfg.Secret, c)
		}},
		{name: "wrong issuer", token: func(t *testing.T) string {
			c := jwt.MapClaims{"iss": "someone", "aud": "api", "exp": time.Now().Add(time.Hour).Unix()}
			return signHS256(t, cfg.Secret, c)
		}},
		{name: "wrong audience", token: func(t *testing.T) string {
			c := jwt.MapClaims{"iss": "council", "aud": "web", "exp": time.Now().Add(time.Hour).Unix()}
			return signHS256(t, cfg.Secret, c)
		}},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
			if tok := tt.token(t); tok != "" {
				r.Header.Set("Authorization", "Bearer "+tok)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, string(types.ErrAuthentication), errorCode(t, w))
		})
	}

	t.Run("skip path", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cr3t", AdminRole: "admin"}
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	handler := Chain(okHandler(), JWTAuth(cfg, nil, logger), RequireRole(cfg.AdminRole, logger))

	token := func(roles ...string) string {
		return signHS256(t, cfg.Secret, jwt.MapClaims{
			"exp":     time.Now().Add(time.Hour).Unix(),
			"user_id": "u-7",
			"roles":   roles,
		})
	}
	call := func(tok string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/observability/routing/refresh", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	t.Run("admin passes and is audited", func(t *testing.T) {
		w := call(token("viewer", "admin"))
		require.Equal(t, http.StatusOK, w.Code)

		entries := logs.FilterMessage("admin action").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "u-7", entries[0].ContextMap()["user_id"])
	})

	t.Run("missing role is forbidden", func(t *testing.T) {
		w := call(token("viewer"))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, string(types.ErrForbidden), errorCode(t, w))
		assert.Equal(t, 1, logs.FilterMessage("admin endpoint denied").Len())
	})

	t.Run("empty role disables the check", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireRole("", zap.NewNop())(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())

	call := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001").Code)

	w := call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, string(types.ErrRateLimited), errorCode(t, w))

	// 其它 IP 有独立的令牌桶
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000").Code)
}

func TestRateLimitKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.5:4242"
	assert.Equal(t, "ip:192.168.1.5", rateLimitKey(r))

	r = r.WithContext(types.WithTenantID(r.Context(), "acme"))
	assert.Equal(t, "tenant:acme", rateLimitKey(r))
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight allowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/agents", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("preflight rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/agents", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/agents", "/api/v1/agents"},
		{"/api/v1/agents/a-sec", "/api/v1/agents/{id}"},
		{"/api/v1/agents/a-sec/process", "/api/v1/agents/{id}/process"},
		{"/api/v1/agents/a-sec/focus", "/api/v1/agents/{id}/focus"},
		{"/api/v1/agents/a-sec/delete", "unmatched"},
		{"/api/v1/observability/breakers/gpt-4o/reset", "/api/v1/observability/breakers/{model}/reset"},
		{"/api/v1/roundtable/stream", "/api/v1/roundtable/stream"},
		{"/wp-admin/login.php", "unmatched"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}
