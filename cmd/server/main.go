// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ablego/ablego/internal/admindashboard"
	"github.com/ablego/ablego/internal/api/auth"
	"github.com/ablego/ablego/internal/backend"
	"github.com/ablego/ablego/internal/cache"
	"github.com/ablego/ablego/internal/config"
	"github.com/ablego/ablego/internal/db"
	"github.com/ablego/ablego/internal/ratelimit"
	"github.com/ablego/ablego/internal/realtime"
	"github.com/ablego/ablego/internal/rpc"
	"github.com/ablego/ablego/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	var (
		configPath   = flag.String("config", "config/app.yaml", "Path to the YAML configuration file")
		hashPassword = flag.String("hash-password", "", "Print the bcrypt hash of a password for ADMIN_PASSWORD_HASH and exit")
	)
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

// app holds everything newServer needs.
type app struct {
	cfg        *config.Config
	dispatcher *rpc.Dispatcher
	broker     *realtime.Broker
	store      *admindashboard.Store
	service    *admindashboard.Service
	limiter    *ratelimit.Limiter
}

func run(cfg *config.Config) error {
	broker := realtime.NewBroker(0)
	defer broker.Close()

	var (
		client     rpc.Client
		dispatcher *rpc.Dispatcher
		relay      *realtime.Relay
	)
	switch cfg.Backend.Mode {
	case config.BackendModeRemote:
		client = rpc.NewHTTPClient(cfg.Backend.URL, cfg.Backend.APIKey, nil)
		streamURL, err := realtime.WebSocketURL(cfg.Backend.URL, rpc.ChangeStreamPath)
		if err != nil {
			return fmt.Errorf("remote change stream: %w", err)
		}
		header := http.Header{}
		if cfg.Backend.APIKey != "" {
			header.Set(rpc.APIKeyHeader, cfg.Backend.APIKey)
		}
		relay = realtime.NewRelay(broker, realtime.RelayConfig{URL: streamURL, Header: header})
		log.Info().Str("url", cfg.Backend.URL).Msg("Using remote dashboard backend")
	default:
		database, err := db.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()

		dispatcher = rpc.NewDispatcher()
		backend.New(database, broker, cfg.Phone.DefaultRegion).Register(dispatcher)
		client = dispatcher
		log.Info().Str("database", cfg.Database.Filename).Msg("Using local dashboard backend")
	}

	sched, err := scheduler.New()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop scheduler")
		}
	}()

	service := admindashboard.NewService(client, cache.New(nil), cfg.Dashboard)
	store := admindashboard.NewStore(service, sched, broker, admindashboard.Options{
		RefreshInterval: cfg.Dashboard.RefreshInterval,
		RefreshTimeout:  cfg.Dashboard.RefreshTimeout,
		SearchLimit:     cfg.Dashboard.SearchLimit,
	})
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close dashboard store")
		}
	}()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := store.SubscribeToChanges(ctx); err != nil {
		return fmt.Errorf("subscribe dashboard store: %w", err)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Close()

	server := newServer(&app{
		cfg:        cfg,
		dispatcher: dispatcher,
		broker:     broker,
		store:      store,
		service:    service,
		limiter:    limiter,
	})

	g, ctx := errgroup.WithContext(ctx)

	// Remote changes feed the local broker, which the store and the browser
	// stream both subscribe to.
	if relay != nil {
		g.Go(func() error {
			return relay.Run(ctx)
		})
	}

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("environment", cfg.App.Environment).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}
