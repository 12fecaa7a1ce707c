package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ironsheep/digit-normalizer/internal/app"
	"github.com/ironsheep/digit-normalizer/internal/config"
	"github.com/ironsheep/digit-normalizer/internal/httpapi"
	"github.com/ironsheep/digit-normalizer/internal/logging"
)

// To test it:
// curl -X POST -H "Content-Type: application/json" -d '{"image":"data:image/png;base64,..."}' http://localhost:8000/api/predict

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", "", "listen address, overrides the configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "digit-httpd: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if err := logging.Setup(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "digit-httpd: %v\n", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	components, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("component", "HTTP_API").Msg("failed to initialize")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := app.CheckHealth(probeCtx, components.Classifier); err != nil {
			log.Warn().Err(err).Str("component", "HTTP_API").Msg("classifier is not ready; predictions will fail until it is")
		}
	}()

	api := httpapi.New(components.Normalizer, components.Classifier, httpapi.Options{
		CORSOrigin: cfg.HTTP.CORSOrigin,
		Timeout:    cfg.Classifier.Timeout,
	})

	serveErr := api.ListenAndServe(ctx, cfg.HTTP.Addr, shutdownGrace)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := components.Close(closeCtx); err != nil {
		log.Error().Err(err).Str("component", "HTTP_API").Msg("shutdown incomplete")
	}

	if serveErr != nil {
		log.Fatal().Err(serveErr).Str("component", "HTTP_API").Msg("digit-httpd has failed")
	}
	log.Info().Str("component", "HTTP_API").Msg("stopped")
}
