package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"infoplatform/app/api"
	"infoplatform/app/cfg"
	"infoplatform/app/config"
	"infoplatform/app/database"
	"infoplatform/app/feed"
	"infoplatform/app/pipeline"
	"infoplatform/app/scheduler"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// help was shown, exit gracefully
		return
	}

	setupLogger(appConfig.Debug)

	slog.Info("Starting InfoPlatform server", "version", appConfig.Version)

	db, err := database.Open(appConfig.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appConfig.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", db.Path(), "schema_version", version, "dirty", dirty)

	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)

	if err := registerSources(appConfig.SourcesDir, sourceRepo); err != nil {
		slog.Error("Failed to register sources", "error", err)
		os.Exit(1)
	}

	fetcher := feed.NewRSSFetcher(&http.Client{}, appConfig.UserAgent,
		time.Duration(appConfig.FetchTimeout)*time.Second)
	ingestPipeline := pipeline.New(sourceRepo, itemRepo, fetcher)

	slog.Info("Starting scheduler", "workers", appConfig.WorkerCount, "default_interval", appConfig.DefaultFetchInterval)
	sched := scheduler.NewScheduler(ingestPipeline, sourceRepo, appConfig.DefaultFetchInterval, appConfig.WorkerCount)
	sched.Start()
	defer sched.Stop()

	if err := sched.SyncJobs(); err != nil {
		slog.Error("Failed to sync scheduled jobs", "error", err)
		os.Exit(1)
	}
	slog.Info("Scheduler started", "jobs", sched.JobCount())

	handler := api.NewHandler(sourceRepo, itemRepo, ingestPipeline, sched, appConfig.Version)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// registerSources loads the YAML source definitions and upserts them into the
// source directory. Definition files are the administrative surface for
// creating and updating sources.
func registerSources(sourcesDir string, sourceRepo database.SourceRepository) error {
	loader := config.NewLoader(sourcesDir)
	defs, err := loader.LoadAll()
	if err != nil {
		return err
	}

	registered := 0
	for _, def := range defs {
		params := make(map[string]string, len(def.Params)+1)
		for k, v := range def.Params {
			params[k] = v
		}
		if def.ExtractContent {
			params["extract_content"] = "true"
		}

		id, err := sourceRepo.UpsertSource(def.Name, def.URL, def.Type, params, def.FetchInterval, def.Enabled)
		if err != nil {
			slog.Warn("Failed to register source", "key", def.Key, "error", err)
			continue
		}

		slog.Info("Registered source", "name", def.Name, "id", id, "url", def.URL, "enabled", def.Enabled)
		registered++
	}

	slog.Info("Source registration complete", "registered", registered, "definitions", len(defs))

	return nil
}
