package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "checkin-sync/internal/api/http"
	"checkin-sync/internal/config"
	"checkin-sync/internal/hub"
	"checkin-sync/internal/jobs"
	"checkin-sync/internal/logger"
	"checkin-sync/internal/repository"
	"checkin-sync/internal/repository/memory"
	"checkin-sync/internal/repository/postgres"
	"checkin-sync/internal/scheduler"
	"checkin-sync/internal/security"
	"checkin-sync/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting check-in member service...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())

	// Initialize Repositories
	var (
		members repository.MemberRepository
		users   repository.UserRepository
	)
	switch cfg.Database.Type {
	case config.DatabaseTypeMemory:
		logger.Info("Using in-memory store; data is lost on restart")
		store := memory.NewStore()
		members, users = store.MemberRepository, store.UserRepository
	default:
		logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
		db, err := openDatabase(cfg)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		store := postgres.NewStore(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}
		members, users = store.MemberRepository, store.UserRepository
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Push hub and services
	eventHub := hub.New(cfg.Push.EventLogSize, registry)
	memberSvc := service.NewMemberService(members, eventHub)
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)
	authSvc := service.NewAuthService(users, tokenManager)

	// HTTP handlers
	router := httpapi.NewRouter(httpapi.Handlers{
		Members:    httpapi.NewMemberHandler(memberSvc),
		Auth:       httpapi.NewAuthHandler(authSvc),
		Push:       httpapi.NewPushHandler(memberSvc, eventHub, time.Duration(cfg.Push.PollTimeoutSeconds)*time.Second),
		Middleware: httpapi.NewAuthMiddleware(tokenManager, cfg.JWT.Enforce),
		Gatherer:   registry,
	})
	if !cfg.JWT.Enforce {
		logger.Warn("Member management routes accept unauthenticated requests (jwt.enforce is false)")
	}

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobs.NewJobRunner(memberSvc, cfg))
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	cronScheduler.Start()

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down...")
	cronScheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Member service stopped. Goodbye!")
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, err
	}
	// Test database connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Database connection established")
	return db, nil
}
