package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cloudbench/pkg/artifact"
	"cloudbench/pkg/telemetry"
	"cloudbench/services/scraper"
	"cloudbench/services/scraper/internal/config"
)

func main() {
	if err := run("scraper"); err != nil {
		fmt.Fprintf(os.Stderr, "scraper: %v\n", err)
		os.Exit(1)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown")
		}
	}()

	codec, err := scraper.ParseCodec(cfg.Codec)
	if err != nil {
		return err
	}

	sources := scraper.DefaultSources()
	if cfg.SourcesFile != "" {
		sources, err = scraper.LoadSources(cfg.SourcesFile)
		if err != nil {
			return err
		}
	}

	store, err := artifact.Open(ctx, cfg.ArtifactSettings())
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	task := &scraper.Task{
		Scraper: scraper.New(scraper.Options{
			Client:        telemetry.HTTPClient(cfg.RequestTimeout),
			UserAgent:     cfg.UserAgent,
			ExcerptLength: cfg.ExcerptLength,
			Logger:        logger,
		}),
		Store:     store,
		Container: cfg.Container,
		BlobName:  cfg.BlobName,
		Codec:     codec,
		Sources:   sources,
	}

	logger.Info().
		Int("sources", len(sources)).
		Str("container", cfg.Container).
		Str("blob", cfg.BlobName).
		Msg("starting scrape")

	result, err := task.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("scrape task failed")
		return err
	}

	logger.Info().
		Int("records", len(result.Records)).
		Int("failures", len(result.Failures)).
		Str("blob", cfg.Container+"/"+cfg.BlobName).
		Msg("upload complete")
	return nil
}
