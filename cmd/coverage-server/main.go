package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/uv-coverage/internal/config"
	"github.com/ironsheep/uv-coverage/internal/httpapi"
	"github.com/ironsheep/uv-coverage/internal/ingest"
	"github.com/ironsheep/uv-coverage/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("coverage-server %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("coverage-server - receives UV frames, measures coverage and stores results")
			fmt.Println()
			fmt.Println("Usage: coverage-server [-config file.yaml]")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  COVERAGE_CONFIG=path         YAML configuration file")
			fmt.Println("  COVERAGE_ADDR=:8001          Listen address")
			fmt.Println("  COVERAGE_UPLOAD_DIR=uploads  Frame storage directory")
			fmt.Println("  COVERAGE_DB_PATH=file.db     Results database")
			fmt.Println("  COVERAGE_THRESHOLD=200       Luminance threshold")
			fmt.Println("  COVERAGE_LOG_LEVEL=debug     Enable debug logging")
			return
		}
	}

	configPath := flag.String("config", os.Getenv("COVERAGE_CONFIG"), "YAML configuration file")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *configPath)
	stop()
	if err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
	log.Printf("Server stopped")
}

// run serves until ctx is cancelled. Every resource it opens is closed before it
// returns.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	for _, w := range cfg.Warnings() {
		log.Printf("WARNING: %s", w)
	}
	if cfg.Debug() {
		log.Printf("Coverage server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	svc, err := ingest.New(ingest.Config{
		UploadDir:     cfg.Server.UploadDir,
		Options:       cfg.Analysis,
		MaxConcurrent: cfg.Server.MaxConcurrent,
		Debug:         cfg.Debug(),
	}, st)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}

	srv := httpapi.New(svc, httpapi.Options{
		Addr:           cfg.Server.Addr,
		FrontendDir:    cfg.Server.FrontendDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		HistoryLimit:   cfg.Server.HistoryLimit,
		GalleryLimit:   cfg.Server.GalleryLimit,
		RequestTimeout: cfg.Server.RequestTimeout,
		Debug:          cfg.Debug(),
	})

	log.Printf("Listening on %s (uploads in %s, database %s)", cfg.Server.Addr, cfg.Server.UploadDir, cfg.Store.Path)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
