package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"udp-monitor/internal/api"
	"udp-monitor/internal/auth"
	"udp-monitor/internal/config"
	"udp-monitor/internal/listener"
	"udp-monitor/internal/logger"
	"udp-monitor/internal/messaging"
	"udp-monitor/internal/metrics"
	"udp-monitor/internal/scheduler"
	"udp-monitor/internal/storage"
)

// @title UDP Monitor API
// @version 1.0
// @description REST API for querying stored UDP datagrams
// @BasePath /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Init Metrics
	metrics.Init()

	// Load Configuration
	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	logg.Info().Str("config", *configPath).Msg("configuration loaded")

	// Setup JWT Secret
	auth.SetSecret(cfg.Auth.JWTSecret)

	// Open the message store
	var store storage.Store
	switch cfg.Database.Driver {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.Database.URL)
	default:
		store, err = storage.NewSQLiteStore(cfg.Database.Path)
	}
	if err != nil {
		logg.Fatal().Err(err).Msg("failed to open message store")
	}
	defer store.Close()
	logg.Info().Str("driver", cfg.Database.Driver).Msg("message store opened")

	// Optional stored-message publisher
	var notifier listener.Notifier
	var publisher *messaging.Publisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err = messaging.NewPublisher(cfg.RabbitMQ.URL, logg)
		if err != nil {
			logg.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer publisher.Close()
		notifier = publisher
		logg.Info().Msg("RabbitMQ connected")
	}

	// Start the UDP listener; a bind failure is fatal.
	udpListener := listener.New(cfg.Listener.Host, cfg.Listener.Port, store, notifier, logg)
	if err := udpListener.Start(); err != nil {
		logg.Fatal().Err(err).Msg("failed to start UDP listener")
	}

	// Graceful Shutdown Setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the retention scheduler
	sched := scheduler.New(store, cfg.Retention(), logg)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	// Start the query API
	apiHandler := api.NewAPI(store, cfg.RetentionDays, logg)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler: apiHandler.Router(),
	}
	go func() {
		logg.Info().Str("addr", server.Addr).Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal().Err(err).Msg("API server error")
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	logg.Info().Msg("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error().Err(err).Msg("HTTP shutdown error")
	}
	udpListener.Stop()
	<-schedDone

	logg.Info().Msg("graceful shutdown complete")
}
