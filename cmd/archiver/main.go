package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/arung-agamani/scarchive-go/internal/config"
	"github.com/arung-agamani/scarchive-go/internal/credential"
	"github.com/arung-agamani/scarchive-go/internal/enroll"
	"github.com/arung-agamani/scarchive-go/internal/gate"
	"github.com/arung-agamani/scarchive-go/internal/media"
	"github.com/arung-agamani/scarchive-go/internal/scheduler"
	"github.com/arung-agamani/scarchive-go/internal/soundcloud"
	"github.com/arung-agamani/scarchive-go/internal/store"
	"github.com/arung-agamani/scarchive-go/internal/transcoder"
	"github.com/arung-agamani/scarchive-go/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "./config.yaml", "path to the YAML configuration document")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting scarchive",
		"tick_seconds", cfg.TickSeconds,
		"upstream_parallelism", cfg.UpstreamParallelism,
		"processing_parallelism", cfg.ProcessingParallelism,
		"webhook_parallelism", cfg.WebhookParallelism,
	)

	gates := gate.NewGates(cfg.UpstreamParallelism, cfg.ProcessingParallelism, cfg.WebhookParallelism)

	credCache := credential.New(nil)
	client := soundcloud.New(credCache, gates.Upstream)

	tc := transcoder.New("ffmpeg", cfg.ShowTranscoderOutput)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tc.Probe(ctx); err != nil {
		slog.Warn("transcoder probe failed at startup; downloads will likely fail until resolved", "error", err)
	}

	trackStore, err := store.LoadOrCreateTrackStore(cfg.TrackStorePath)
	if err != nil {
		slog.Error("failed to load track store", "error", err)
		os.Exit(1)
	}
	accountStore, err := store.LoadOrCreateAccountStore(cfg.AccountsPath)
	if err != nil {
		slog.Error("failed to load account store", "error", err)
		os.Exit(1)
	}

	pipeline := media.New(client, tc, cfg.TempDir)
	poster := webhook.New(cfg.WebhookURL)

	var enroller scheduler.Enroller
	if cfg.AutoEnrollSource != "" {
		enroller = enroll.New(client, accountStore, cfg.AutoEnrollSource)
	}

	sched := scheduler.New(cfg, client, gates, trackStore, accountStore, pipeline, poster, enroller)

	var stopping atomic.Bool
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		for range sigChan {
			if stopping.Swap(true) {
				slog.Warn("second shutdown signal received, exiting immediately")
				os.Exit(1)
			}
			slog.Info("shutdown signal received")
			cancel()
		}
	}()

	sched.Run(ctx)
	slog.Info("scarchive stopped")
}
