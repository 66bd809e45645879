package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alorle/pvr-manager/cache"
	"github.com/alorle/pvr-manager/circuitbreaker"
	"github.com/alorle/pvr-manager/config"
	"github.com/alorle/pvr-manager/handlers"
	"github.com/alorle/pvr-manager/internal/adapter/driven"
	"github.com/alorle/pvr-manager/internal/application"
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/lineup"
	"github.com/alorle/pvr-manager/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	cfg.Print()

	logger := logging.New(logging.ParseLogLevel(cfg.Resilience.LogLevel))

	// Open BoltDB
	db, err := bbolt.Open(cfg.Storage.Path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("Error closing database", logging.Fields{"error": err.Error()})
		}
	}()

	repo, err := driven.NewGroupBoltDBRepository(db)
	if err != nil {
		log.Fatalf("Failed to create group repository: %v", err)
	}

	// Lineup client with optional file cache fallback
	var storage cache.Storage
	if cfg.Storage.CacheDir != "" {
		storage, err = cache.NewFileStorage(cfg.Storage.CacheDir)
		if err != nil {
			log.Fatalf("Failed to initialize lineup cache: %v", err)
		}
	}
	lineupClient := lineup.NewClient(30*time.Second, storage, cfg.Sync.Interval, logger)

	// Backend registry: one circuit-broken lineup supplier per backend
	registry := driven.NewBackendRegistry(driven.RegistryConfig{
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Resilience.CBFailureThreshold,
			Timeout:          cfg.Resilience.CBTimeout,
			HalfOpenRequests: cfg.Resilience.CBHalfOpenRequests,
			Logger:           logger,
		},
		Logger: logger,
	})
	for _, b := range cfg.Backends {
		backend := driven.Backend{
			ID:       b.ID,
			Name:     b.Name,
			Priority: b.Priority,
			Enabled:  b.Enabled,
		}
		supplier := driven.NewLineupSupplier(b.ID, b.URL, lineupClient)
		if err := registry.Register(backend, supplier); err != nil {
			log.Fatalf("Failed to register backend %q: %v", b.Name, err)
		}
	}

	policy := group.Policy{
		SyncGroups:           cfg.Numbering.SyncGroups,
		BackendOrder:         cfg.Numbering.BackendOrder,
		BackendNumbers:       cfg.Numbering.BackendNumbers,
		BackendNumbersAlways: cfg.Numbering.BackendNumbersAlways,
		StartFromOne:         cfg.Numbering.StartFromOne,
	}
	events := driven.NewLoggingEventSink(logger)

	newManager := func(radio bool) *application.GroupManager {
		return application.NewGroupManager(application.ManagerConfig{
			Radio:      radio,
			Policy:     policy,
			Repository: repo,
			Catalog:    repo,
			Clients:    registry,
			Events:     events,
			Logger:     logger,
		})
	}
	tv := newManager(false)
	radio := newManager(true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tv.LoadAll(ctx); err != nil {
		log.Fatalf("Failed to load TV groups: %v", err)
	}
	if err := radio.LoadAll(ctx); err != nil {
		log.Fatalf("Failed to load radio groups: %v", err)
	}

	// Periodic reconciliation against the backends
	go func() {
		ticker := time.NewTicker(cfg.Sync.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := tv.SyncAll(ctx); err != nil {
					logger.Warn("TV group sync failed", logging.Fields{"error": err.Error()})
				}
				if err := radio.SyncAll(ctx); err != nil {
					logger.Warn("Radio group sync failed", logging.Fields{"error": err.Error()})
				}
			}
		}
	}()

	handler := handlers.SetupRoutes(handlers.Dependencies{
		Logger: logger,
		TV:     tv,
		Radio:  radio,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", logging.Fields{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, shutting down gracefully", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server stopped", nil)
}
