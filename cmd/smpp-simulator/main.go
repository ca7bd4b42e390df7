package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thrillee/smppsim/internal/api"
	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/logging"
	"github.com/thrillee/smppsim/internal/reassembly"
	"github.com/thrillee/smppsim/internal/simulator"
	"github.com/thrillee/smppsim/internal/workers"
	"github.com/thrillee/smppsim/pkg/segmenter"
)

func main() {
	// --- Context and Basic Setup ---
	appCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Setup(os.Stdout, cfg.LogLevel)
	slog.Info("Logging initialized", slog.String("level", cfg.LogLevel))

	conns, err := config.LoadConnections(cfg.ConnectionsFile)
	if err != nil {
		log.Fatalf("Failed to load connections: %v", err)
	}

	// --- Store ---
	st, closeStore, err := openStore(appCtx, cfg.Store)
	if err != nil {
		slog.Error("Store setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	// --- Core ---
	detector := charset.NewDetector()
	engine := reassembly.NewEngine(st, detector, reassembly.WithStaleTimeout(cfg.Reassembly.StaleTimeout))
	sim := simulator.New(simulator.Deps{
		Store:     st,
		Engine:    engine,
		Detector:  detector,
		Segmenter: segmenter.NewDefaultSegmenter(),
	})
	for _, c := range conns {
		if _, err := sim.Add(c); err != nil {
			log.Fatalf("Failed to add connection %d: %v", c.ID, err)
		}
	}

	// --- Workers ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workerManager := workers.NewManager(workers.Config{
		ReapInterval:  cfg.Reassembly.ReapInterval,
		EvictInterval: cfg.Store.EvictInterval,
	})
	workerManager.StartReaper(workerCtx, engine)
	if ev, ok := st.(workers.Evicter); ok {
		workerManager.StartEvicter(workerCtx, ev)
	}

	// --- Connections ---
	if err := sim.Start(appCtx); err != nil {
		slog.Warn("Some connections failed to start", slog.Any("error", err))
	}

	// --- API ---
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, st, sim)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil {
				rootCancel()
			}
		}()
	}

	// --- Wait for Shutdown ---
	<-appCtx.Done()
	slog.Info("Shutdown signal received, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server forced to shutdown", slog.Any("error", err))
		}
	}
	sim.Shutdown(shutdownCtx)

	// Last reap before the store closes.
	if n := engine.ReapStale(shutdownCtx); n > 0 {
		slog.Info("Published stale assemblies on shutdown", slog.Int("count", n))
	}
	stopWorkers()
	workerManager.Wait()

	slog.Info("Simulator stopped")
}
