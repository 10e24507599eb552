package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestGetTokenCost(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		expectedCost int64
	}{
		{"metrics endpoint", "/metrics", 0},
		{"health endpoint", "/health", 5},
		{"document analysis", "/v1/documents/analyze", 200},
		{"enrich", "/v1/medications/enrich", 50},
		{"interactions", "/v1/interactions", 10},
		{"match", "/v1/medications/match/losartan", 20},
		{"match without name", "/v1/medications/match", 5},
		{"unknown", "/unknown", 5},
		{"root", "/", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.expectedCost, getTokenCost(req), tt.path)
		})
	}
}

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{"single forwarded ip", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "203.0.113.1"},
		{"forwarded chain", "192.168.1.1:12345", map[string]string{"X-Forwarded-For": " 203.0.113.1 , 10.0.0.1"}, "203.0.113.1"},
		{"real ip header", "192.168.1.1:12345", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"no proxy headers", "192.168.1.1:12345", nil, "192.168.1.1"},
		{"no port", "192.168.1.1", nil, "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			var got string
			handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBlockDirectAccessMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		header     string
		expected   int
	}{
		{"localhost ipv4", "127.0.0.1:12345", "", http.StatusOK},
		{"localhost ipv6", "[::1]:12345", "", http.StatusOK},
		{"direct ip", "203.0.113.1:12345", "", http.StatusForbidden},
		{"through proxy with forwarded for", "10.0.0.2:12345", "X-Forwarded-For", http.StatusOK},
		{"through proxy with real ip", "10.0.0.2:12345", "X-Real-IP", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				req.Header.Set(tt.header, "203.0.113.1")
			}
			rr := httptest.NewRecorder()

			BlockDirectAccessMiddleware(okHandler).ServeHTTP(rr, req)

			assert.Equal(t, tt.expected, rr.Code)
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		header   string
		expected int
	}{
		{"within limits", "small", "", http.StatusOK},
		{"exactly max body", strings.Repeat("a", 100), "", http.StatusOK},
		{"body too large", strings.Repeat("a", 101), "", http.StatusRequestEntityTooLarge},
		{"headers too large", "", strings.Repeat("h", 300), http.StatusRequestHeaderFieldsTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("X-Padding", tt.header)
			}
			rr := httptest.NewRecorder()

			RequestSizeMiddleware(100, 256)(okHandler).ServeHTTP(rr, req)

			assert.Equal(t, tt.expected, rr.Code)
		})
	}
}

func TestRequestSizeMiddleware_UnknownContentLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("body"))
	req.ContentLength = -1
	rr := httptest.NewRecorder()

	RequestSizeMiddleware(2, 1024)(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "unknown length passes")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()
	handler := rl.Middleware(okHandler)

	// five analyses drain a full bucket
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/documents/analyze", nil)
		req.RemoteAddr = "203.0.113.9"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/analyze", nil)
	req.RemoteAddr = "203.0.113.9"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// other clients keep their own bucket
	req = httptest.NewRequest(http.MethodPost, "/v1/documents/analyze", nil)
	req.RemoteAddr = "203.0.113.10"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, "another client passes")
}

func TestRateLimiter_FreeRoutesSkipBuckets(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	rl.Middleware(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rl.clients, "no bucket for a free route")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()

	rl.getBucket("198.51.100.1")
	drained := rl.getBucket("198.51.100.2")
	drained.TakeAvailable(500)

	assert.Equal(t, 1, rl.cleanup(), "idle buckets removed")
	assert.Contains(t, rl.clients, "198.51.100.2", "the busy client keeps its bucket")
}
