package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func middlewareConfig() Config {
	cfg := DefaultConfig()
	cfg.Whitelist = nil
	cfg.CleanupInterval = time.Hour
	return cfg
}

func TestMiddleware_AllowedRequest(t *testing.T) {
	m := New(middlewareConfig())
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "100", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_DeniedRequest(t *testing.T) {
	cfg := middlewareConfig()
	cfg.MaxRequests = 2
	m := New(cfg)
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	// Third request should be denied
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	var body map[string]interface{}
	err := json.NewDecoder(rr.Body).Decode(&body)
	require.NoError(t, err)
	assert.Equal(t, "Rate limit exceeded", body["message"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.Greater(t, body["retry_after"].(float64), float64(0))
}

func TestMiddleware_BurstBlock(t *testing.T) {
	cfg := middlewareConfig()
	cfg.BurstLimit = 2
	m := New(cfg)
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("Retry-After"))
}

func TestMiddleware_EndpointOverride(t *testing.T) {
	cfg := middlewareConfig()
	cfg.EndpointLimits = map[string]EndpointLimit{
		"/api/ai/chat": {MaxRequests: 1, Window: 60 * time.Second},
	}
	m := New(cfg)
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("POST", "/api/ai/chat", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))

	req = httptest.NewRequest("POST", "/api/ai/chat", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// The same caller is under the global limits on other paths.
	req = httptest.NewRequest("GET", "/other", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_WhitelistedClient(t *testing.T) {
	cfg := middlewareConfig()
	cfg.MaxRequests = 1
	cfg.BurstLimit = 1
	cfg.Whitelist = []string{"127.0.0.1"}
	m := New(cfg)
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "127.0.0.1:54321"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, "whitelisted request %d denied", i+1)
	}
}

func TestMiddleware_HealthBypass(t *testing.T) {
	cfg := middlewareConfig()
	cfg.MaxRequests = 1
	cfg.BurstLimit = 1
	m := New(cfg)
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
}

func TestMiddleware_XForwardedFor(t *testing.T) {
	cfg := middlewareConfig()
	cfg.MaxRequests = 1
	m := New(cfg)
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	// Two clients behind the same proxy are limited independently.
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.51")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// The first client's quota is spent.
	req = httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestMiddleware_XRealIP(t *testing.T) {
	cfg := middlewareConfig()
	cfg.MaxRequests = 1
	m := New(cfg)
	defer m.Close()

	handler := Middleware(m)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Real-IP", "203.0.113.50")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.0.0.2:99999"
	req.Header.Set("X-Real-IP", "203.0.113.50")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{name: "plain", remoteAddr: "192.168.1.1:12345", expected: "192.168.1.1"},
		{name: "ipv6", remoteAddr: "[::1]:12345", expected: "::1"},
		{name: "no port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
		{
			name:       "forwarded for",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"},
			expected:   "203.0.113.50",
		},
		{
			name:       "real ip",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "203.0.113.60"},
			expected:   "203.0.113.60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, clientIP(req))
		})
	}
}
