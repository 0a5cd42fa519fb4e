package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ironsheep/uv-coverage/internal/config"
	"github.com/ironsheep/uv-coverage/internal/server"
	"github.com/ironsheep/uv-coverage/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("coverage-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("coverage-mcp - MCP server for UV coverage analysis")
			fmt.Println()
			fmt.Println("Usage: coverage-mcp [-config file.yaml] [-no-history]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  COVERAGE_CONFIG=path         YAML configuration file")
			fmt.Println("  COVERAGE_DB_PATH=file.db     Results database for coverage_history")
			fmt.Println("  COVERAGE_LOG_LEVEL=debug     Enable debug logging")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			return
		}
	}

	configPath := flag.String("config", os.Getenv("COVERAGE_CONFIG"), "YAML configuration file")
	noHistory := flag.Bool("no-history", false, "do not open the results database")
	flag.Parse()

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := run(*configPath, !*noHistory, os.Stdin, os.Stdout); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// run serves MCP requests from r until EOF. The results database, when opened, is
// closed before it returns.
func run(configPath string, withHistory bool, r io.Reader, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	for _, warning := range cfg.Warnings() {
		log.Printf("WARNING: %s", warning)
	}
	if cfg.Debug() {
		log.Printf("Coverage MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	var history server.HistorySource
	if withHistory {
		st, err := store.Open(context.Background(), cfg.Store.Path)
		if err != nil {
			log.Printf("WARNING: results database unavailable, coverage_history disabled: %v", err)
		} else {
			defer st.Close()
			history = st
		}
	}

	srv := server.New(cfg.Analysis, history)
	if err := srv.Serve(r, w); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
