package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nathanyu/account-transfer/internal/account"
	"github.com/nathanyu/account-transfer/internal/config"
	"github.com/nathanyu/account-transfer/internal/engine"
	"github.com/nathanyu/account-transfer/internal/handler"
	"github.com/nathanyu/account-transfer/internal/lockregistry"
	"github.com/nathanyu/account-transfer/internal/middleware"
	"github.com/nathanyu/account-transfer/internal/notify"
	"github.com/nathanyu/account-transfer/internal/telemetry"
	"github.com/nathanyu/account-transfer/internal/transferstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName    = "account-transfer"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	telemetry.InitLogger(serviceName, cfg.LogLevel)

	cleanup, err := telemetry.InitTracer(telemetry.TracerConfig{
		ServiceName: serviceName,
		Version:     serviceVersion,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Printf("Warning: Failed to initialize tracer: %v", err)
	} else {
		defer cleanup()
	}

	gin.SetMode(cfg.GinMode)

	log.Println("Starting Account Transfer service...")

	// 1. Notifiers: always log, optionally publish to NATS
	notifiers := notify.Multi{notify.NewLogNotifier(telemetry.Logger)}
	if cfg.NATSUrl != "" {
		log.Printf("Connecting to NATS at %s...", cfg.NATSUrl)
		conn, err := notify.Connect(cfg.NATSUrl, serviceName)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer conn.Drain()
		notifiers = append(notifiers, notify.NewNATSNotifier(conn, cfg.NATSSubject))
		log.Println("Connected to NATS")
	}

	// 2. Transfer engine over process-scoped stores
	var opts []engine.Option
	if cfg.LockAcquireTimeout > 0 {
		opts = append(opts, engine.WithAcquireTimeout(cfg.LockAcquireTimeout))
	}
	transferEngine := engine.NewTransferEngine(
		account.NewStore(),
		lockregistry.New(),
		transferstore.New(),
		notifiers,
		opts...,
	)

	// 3. Seed accounts
	seeds, err := cfg.Seeds()
	if err != nil {
		log.Fatalf("Invalid seed accounts: %v", err)
	}
	for _, seed := range seeds {
		if _, err := transferEngine.CreateAccount(context.Background(), seed.AccountID, seed.Balance); err != nil {
			log.Fatalf("Failed to seed account %s: %v", seed.AccountID, err)
		}
	}
	log.Printf("Seeded %d accounts", len(seeds))

	// 4. HTTP router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Tracing())
	router.Use(middleware.Metrics())
	handler.SetupRoutes(router, handler.NewHandler(transferEngine))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Metrics server on a separate port for Prometheus scraping
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTP server listening on port %d", cfg.Port)
		return serve(srv)
	})
	g.Go(func() error {
		log.Printf("Metrics server listening on port %d", cfg.MetricsPort)
		return serve(metricsSrv)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.Printf("Service stopped with error: %v", err)
		return
	}
	log.Println("Service stopped")
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s: %w", srv.Addr, err)
	}
	return nil
}
