package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/mcdev12/warboard/go/internal/dbconfig"
	"github.com/mcdev12/warboard/go/internal/gateway"
	"github.com/mcdev12/warboard/go/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(os.Getenv("WARBOARD_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, err := connectNATS(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	if nc != nil {
		defer nc.Close()
	}

	accessor, closeStore, err := openStore(ctx, cfg, nc)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open store")
	}
	defer closeStore()

	log.Info().
		Str("backend", cfg.Store.Backend).
		Str("port", cfg.Port).
		Bool("nats", nc != nil).
		Msg("starting overlay gateway")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []gateway.Option{gateway.WithMetrics(gateway.NewPrometheusMetrics(registry))}
	if nc != nil {
		opts = append(opts, gateway.WithNATS(nc))
	}
	gatewayService := gateway.NewService(cfg.gatewayConfig(), accessor, opts...)

	// Setup HTTP server
	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Debug().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Sessions set their own write deadlines and ignore read deadlines, so
	// the server only bounds header reads
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Hijacked WebSocket connections are not covered by server.Shutdown
	cancel()
	<-serviceDone

	log.Info().Msg("overlay gateway shutdown complete")
}

func setupLogging(cfg *Config) {
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// connectNATS returns nil when neither the store nor the update consumer
// needs NATS
func connectNATS(cfg *Config) (*nats.Conn, error) {
	if cfg.Store.Backend != "nats" && cfg.NATS.URL == "" {
		return nil, nil
	}

	natsCfg := gateway.DefaultNATSConfig()
	if cfg.NATS.URL != "" {
		natsCfg.URL = cfg.NATS.URL
	}
	return gateway.ConnectNATS(natsCfg)
}

func openStore(ctx context.Context, cfg *Config, nc *nats.Conn) (store.Accessor, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		db, err := sql.Open("postgres", dbCfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		log.Info().Str("database", dbCfg.Database).Str("table", dbCfg.Table).Msg("connected to Postgres")
		return store.NewPostgres(db, dbCfg), func() { db.Close() }, nil

	case "nats":
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, nil, fmt.Errorf("create JetStream context: %w", err)
		}
		kv, err := store.NewNATSKV(ctx, js, cfg.Store.NATSBucket)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("bucket", cfg.Store.NATSBucket).Msg("using NATS key-value store")
		return kv, func() {}, nil

	case "badger":
		if cfg.Store.BadgerDir == "" {
			return nil, nil, errors.New("BADGER_DIR is required for the badger backend")
		}
		db, err := store.OpenBadger(cfg.Store.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("dir", cfg.Store.BadgerDir).Msg("using badger store")
		return db, func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close badger")
			}
		}, nil

	default:
		mem := store.NewMemory()
		if cfg.Store.SeedFile == "" {
			log.Warn().Msg("using empty in-memory store; every war reads as unavailable")
			return mem, func() {}, nil
		}
		ids, wars, err := store.LoadSeedFile(cfg.Store.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range ids {
			mem.Put(id, *wars[id])
		}
		log.Info().Int("wars", len(ids)).Str("file", cfg.Store.SeedFile).Msg("using seeded in-memory store")
		return mem, func() {}, nil
	}
}
