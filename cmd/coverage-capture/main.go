package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/uv-coverage/internal/capture"
	"github.com/ironsheep/uv-coverage/internal/config"
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
			fmt.Printf("coverage-capture %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("coverage-capture - captures UV frames and uploads them for analysis")
			fmt.Println()
			fmt.Println("Usage: coverage-capture [-config file.yaml]")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  COVERAGE_CONFIG=path                              YAML configuration file")
			fmt.Println("  COVERAGE_BACKEND_URL=http://host:8001/upload      Upload endpoint")
			fmt.Println("  COVERAGE_CAPTURE_INTERVAL=1s                      Pause between frames")
			fmt.Println("  COVERAGE_LOG_LEVEL=debug                          Enable debug logging")
			fmt.Println()
			fmt.Println("Runs until interrupted.")
			return
		}
	}

	configPath := flag.String("config", os.Getenv("COVERAGE_CONFIG"), "YAML configuration file")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if cfg.Debug() {
		log.Printf("Capture loop v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := &capture.Loop{
		Camera: &capture.CommandCamera{
			Command: cfg.Capture.Command,
			Path:    cfg.Capture.ImagePath,
			Width:   cfg.Capture.Width,
			Height:  cfg.Capture.Height,
			Timeout: cfg.Capture.CaptureTimeout,
		},
		Uploader: &capture.HTTPUploader{
			URL:     cfg.Capture.BackendURL,
			Timeout: cfg.Capture.UploadTimeout,
		},
		Interval: cfg.Capture.Interval,
	}

	log.Printf("Starting capture loop, uploading to %s", cfg.Capture.BackendURL)
	if err := loop.Run(ctx); err != nil {
		log.Fatalf("Capture loop error: %v", err)
	}
	log.Printf("Capture loop stopped")
}
