package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ablego/ablego/internal/api/auth"
	"github.com/ablego/ablego/internal/ratelimit"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestWithRequestIDSetsHeaderAndContext(t *testing.T) {
	var seen string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected request id in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("expected header %q to match context id %q", got, seen)
	}
}

func TestWithLoggingToleratesMissingRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	WithLogging(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestWithRecovery(t *testing.T) {
	handler := WithRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWithAdminAuth(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	creds := auth.Credentials{Username: "admin", PasswordHash: hash}

	tests := []struct {
		name      string
		creds     auth.Credentials
		allowDev  bool
		path      string
		user      string
		password  string
		wantCode  int
		challenge bool
	}{
		{name: "valid", creds: creds, path: "/api/v1/admin/dashboard", user: "admin", password: "s3cret", wantCode: http.StatusNoContent},
		{name: "bad password", creds: creds, path: "/api/v1/admin/dashboard", user: "admin", password: "x", wantCode: http.StatusUnauthorized, challenge: true},
		{name: "missing auth", creds: creds, path: "/api/v1/admin/dashboard", wantCode: http.StatusUnauthorized, challenge: true},
		{name: "health is open", creds: creds, path: "/health", wantCode: http.StatusNoContent},
		{name: "rpc uses its own key", creds: creds, path: "/rpc/get_admin_dashboard_stats", wantCode: http.StatusNoContent},
		{name: "development without hash", allowDev: true, path: "/api/v1/admin/dashboard", wantCode: http.StatusNoContent},
		{name: "production without hash", path: "/api/v1/admin/dashboard", wantCode: http.StatusUnauthorized, challenge: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := WithAdminAuth(tt.creds, tt.allowDev)(okHandler)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.password)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if got := rec.Header().Get("WWW-Authenticate") != ""; got != tt.challenge {
				t.Fatalf("expected challenge header %v, got %v", tt.challenge, got)
			}
		})
	}
}

func TestWithRateLimit(t *testing.T) {
	clock := fixedClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	limiter := ratelimit.New(&ratelimit.Config{RequestsPerSecond: 0.5, Burst: 1, Clock: clock})
	defer limiter.Close()

	handler := WithRateLimit(limiter, false)(okHandler)
	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.5:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("/api/v1/admin/dashboard"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request allowed, got %d", rec.Code)
	}

	rec := send("/api/v1/admin/dashboard")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	if rec := send("/health"); rec.Code != http.StatusNoContent {
		t.Fatalf("expected health to bypass the limiter, got %d", rec.Code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{in: 0, want: 1},
		{in: 200 * time.Millisecond, want: 1},
		{in: time.Second, want: 1},
		{in: 1500 * time.Millisecond, want: 2},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
