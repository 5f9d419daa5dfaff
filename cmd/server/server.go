// cmd/server/server.go
package main

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ablego/ablego/internal/admindashboard"
	"github.com/ablego/ablego/internal/api"
	"github.com/ablego/ablego/internal/api/admin"
	"github.com/ablego/ablego/internal/api/auth"
	"github.com/ablego/ablego/internal/realtime"
	"github.com/ablego/ablego/internal/rpc"
)

func newServer(a *app) *http.Server {
	router := http.NewServeMux()

	creds := auth.Credentials{
		Username:     a.cfg.Admin.Username,
		PasswordHash: a.cfg.Admin.PasswordHash,
	}

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithAdminAuth(creds, a.cfg.IsDevelopment()),
		api.WithRateLimit(a.limiter, a.cfg.RateLimit.TrustProxy),
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	registerRoutes(router, a)

	// WriteTimeout stays zero so the WebSocket change stream is not cut off.
	return &http.Server{
		Addr:              ":" + strconv.Itoa(a.cfg.App.Port),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, a *app) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// The in-process backend is also reachable over HTTP so another dashboard
	// instance can run in remote mode against this one. It is only mounted
	// when a backend API key is configured.
	if a.dispatcher != nil && a.cfg.Backend.APIKey != "" {
		mux.Handle("POST /rpc/{procedure}", rpc.NewHandler(a.dispatcher, a.cfg.Backend.APIKey))

		// Server-to-server stream; the API key stands in for the origin check.
		stream := realtime.NewWebSocketHandler(a.broker, admindashboard.ChangeResources, func(*http.Request) bool { return true })
		mux.Handle("GET "+rpc.ChangeStreamPath, rpc.RequireAPIKey(a.cfg.Backend.APIKey, stream))
	}

	changes := realtime.NewWebSocketHandler(a.broker, admindashboard.ChangeResources, sameOrigin(a.cfg.App.BaseURL))
	formatter := admindashboard.NewFormatter(a.cfg.Dashboard.CurrencySymbol, a.cfg.Dashboard.Locale)
	admin.NewHandlers(a.store, a.service, formatter, changes).RegisterRoutes(mux)
}

// sameOrigin accepts WebSocket upgrades whose Origin matches baseURL. With no
// base URL configured it accepts requests whose Origin host matches the Host
// header.
func sameOrigin(baseURL string) func(*http.Request) bool {
	var allowed string
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Host != "" {
		allowed = parsed.Host
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if allowed != "" {
			return parsed.Host == allowed
		}
		return parsed.Host == r.Host
	}
}
