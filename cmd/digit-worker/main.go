package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ironsheep/digit-normalizer/internal/app"
	"github.com/ironsheep/digit-normalizer/internal/config"
	"github.com/ironsheep/digit-normalizer/internal/logging"
	"github.com/ironsheep/digit-normalizer/internal/worker"
)

// This assumes that there is a rabbit mq running.

const reconnectDelay = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "digit-worker: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "digit-worker: %v\n", err)
		os.Exit(1)
	}

	components, err := app.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("component", "DIGIT_WORKER").Msg("failed to initialize")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Loop forever, since the worker <-> rabbitmq connection can break
	for ctx.Err() == nil {
		w := worker.New(cfg.AMQP, components.Normalizer, components.Classifier, cfg.Classifier.Timeout)
		log.Info().Str("component", "DIGIT_WORKER").Str("tag", w.Tag()).Msg("creating new worker")

		if err := w.Run(); err != nil {
			log.Error().Err(err).Str("component", "DIGIT_WORKER").Msg("error running worker")
			select {
			case <-ctx.Done():
			case <-time.After(reconnectDelay):
			}
			continue
		}

		select {
		case err := <-w.Done:
			log.Error().Err(err).Str("component", "DIGIT_WORKER").Msg("worker stopped")
		case <-ctx.Done():
			log.Info().Str("component", "DIGIT_WORKER").Msg("caught signal, shutting down")
			if err := w.Shutdown(); err != nil {
				log.Debug().Err(err).Str("component", "DIGIT_WORKER").Msg("shutdown")
			}
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := components.Close(closeCtx); err != nil {
		log.Error().Err(err).Str("component", "DIGIT_WORKER").Msg("shutdown incomplete")
	}
}
