package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ironsheep/uv-coverage/internal/analyzer"
	"github.com/ironsheep/uv-coverage/internal/config"
	"github.com/ironsheep/uv-coverage/internal/imaging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Fprintln(os.Stderr, "coverage - measure UV particle coverage of a frame")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage: coverage [options] <image>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Prints the coverage percentage with 4 decimals and writes the")
	fmt.Fprintln(os.Stderr, "annotated image as <name>_detected.<ext> unless -no-save is given.")
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("coverage %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		}
	}

	configPath := flag.String("config", os.Getenv("COVERAGE_CONFIG"), "YAML configuration file")
	output := flag.String("o", "", "annotated image path (default <name>_detected.<ext>)")
	noSave := flag.Bool("no-save", false, "do not write the annotated image")
	threshold := flag.Int("threshold", -1, "luminance threshold 0-255 (default from config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	opts := cfg.Analysis
	if *threshold >= 0 {
		opts.Threshold = *threshold
	}
	for _, w := range opts.Warnings() {
		log.Printf("WARNING: %s", w)
	}
	if cfg.Debug() {
		log.Printf("coverage v%s: threshold %d, kernel %d", Version, opts.Threshold, opts.KernelSize)
	}

	result, err := analyzer.AnalyzeFile(input, opts)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	fmt.Printf("%.4f\n", result.Coverage)

	if *noSave {
		return
	}
	dest := *output
	if dest == "" {
		dest = analyzer.AnnotatedName(input)
	}
	if err := imaging.Save(result.Annotated, dest); err != nil {
		log.Fatalf("Failed to write annotated image: %v", err)
	}
	if cfg.Debug() {
		log.Printf("Annotated image written to %s (%d regions)", dest, len(result.Regions))
	}
}
