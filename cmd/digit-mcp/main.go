package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ironsheep/digit-normalizer/internal/app"
	"github.com/ironsheep/digit-normalizer/internal/config"
	"github.com/ironsheep/digit-normalizer/internal/logging"
	"github.com/ironsheep/digit-normalizer/internal/server"
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
			fmt.Printf("digit-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("digit-mcp - MCP server for hand-drawn digit normalization")
			fmt.Println()
			fmt.Println("Usage: digit-mcp [-config file.yaml]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  -config FILE     YAML configuration file (or DIGIT_CONFIG)")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  DIGIT_LOG_LEVEL=debug          Enable debug logging")
			fmt.Println("  DIGIT_CLASSIFIER=remote|ocr|none")
			fmt.Println("  DIGIT_INFERENCE_URL=...        Predict endpoint for the remote classifier")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Logs are written to stderr.")
			return
		}
	}

	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "digit-mcp: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "digit-mcp: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("component", "MCP_SERVER").Str("version", Version).
		Str("build_time", BuildTime).Str("commit", GitCommit).Msg("starting")

	components, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("component", "MCP_SERVER").Msg("failed to initialize")
	}

	srv := server.New(components.Normalizer, components.Classifier)
	runErr := srv.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := components.Close(ctx); err != nil {
		log.Error().Err(err).Str("component", "MCP_SERVER").Msg("shutdown incomplete")
	}

	if runErr != nil {
		log.Fatal().Err(runErr).Str("component", "MCP_SERVER").Msg("server error")
	}
}
