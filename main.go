package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"trendcast/cache"
	"trendcast/capacity"
	"trendcast/config"
	"trendcast/internal/retry"
	"trendcast/pipeline"
	"trendcast/platform"
	"trendcast/report"
	"trendcast/scheduler"
	"trendcast/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: trendcast.yaml)")
	platformsFlag := flag.String("platforms", "", "Comma-separated platforms to run (default: all configured)")
	dryRun := flag.Bool("dry-run", false, "Use built-in mock services instead of live endpoints")
	timeout := flag.Duration("timeout", 0, "Overall batch timeout (0 = per-run timeouts only)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `trendcast - trend-driven short-form content pipeline

Analyzes trending content per platform, generates and renders an original
short, and publishes it, respecting each service's rate limits and quotas.

Usage:
  trendcast [flags]

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	platforms := cfg.PlatformNames()
	if *platformsFlag != "" {
		platforms = splitList(*platformsFlag)
	}

	orch, err := buildOrchestrator(cfg, *dryRun, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	log.Info("starting run batch",
		slog.Any("platforms", platforms),
		slog.Bool("dry_run", *dryRun))

	runs := orch.Execute(ctx, platforms)
	rep := report.Aggregate(platforms, runs)

	out, err := rep.JSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	archive := storage.NewArchive(cfg.ArchivePath, cfg.ArchiveHistory)
	if id, err := archive.Save(rep); err != nil {
		log.Warn("could not archive report", slog.Any("error", err))
	} else {
		log.Info("report archived", slog.String("id", id), slog.String("path", cfg.ArchivePath))
	}

	if rep.Succeeded == 0 && rep.Failed > 0 {
		os.Exit(1)
	}
}

// buildOrchestrator wires the full stack: capacity tracker, scheduler,
// service client, artifact cache, orchestrator.
func buildOrchestrator(cfg *config.Config, dryRun bool, log *slog.Logger) (*pipeline.Orchestrator, error) {
	resources := make([]capacity.Resource, 0, len(cfg.Resources))
	for _, r := range cfg.Resources {
		resources = append(resources, capacity.Resource{
			ID:             r.ID,
			Capacity:       r.Capacity,
			RefillInterval: r.RefillInterval.Std(),
			DailyQuota:     r.DailyQuota,
			DefaultCost:    r.DefaultCost,
		})
	}
	tracker, err := capacity.NewTracker(resources)
	if err != nil {
		return nil, fmt.Errorf("build capacity tracker: %w", err)
	}

	sched := scheduler.New(tracker, scheduler.Config{
		Retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Std(),
			CapDelay:    cfg.Retry.CapDelay.Std(),
		},
		MaxInFlight: cfg.MaxInFlight,
		Breaker: scheduler.BreakerConfig{
			WindowSize:       cfg.Breaker.WindowSize,
			MinSamples:       cfg.Breaker.MinSamples,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cfg.Breaker.Cooldown.Std(),
		},
	}, log)

	var services platform.Services
	if dryRun {
		services = platform.StubServices(platform.StubConfig{RenderPolls: 2})
	} else {
		if cfg.Endpoints.Trend == "" {
			return nil, fmt.Errorf("live mode requires configured endpoints (or pass --dry-run)")
		}
		services = platform.RESTServices(
			platform.Endpoints{
				Trend:      cfg.Endpoints.Trend,
				Generation: cfg.Endpoints.Generation,
				Render:     cfg.Endpoints.Render,
				Publish:    cfg.Endpoints.Publish,
			},
			platform.Credentials{
				Trend:      cfg.Credentials.Trend,
				Generation: cfg.Credentials.Generation,
				Render:     cfg.Credentials.Render,
				Publish:    cfg.Credentials.Publish,
			},
			&http.Client{Timeout: 30 * time.Second},
		)
	}

	poll := platform.DefaultPollConfig()
	if dryRun {
		// Mock renders complete quickly; no reason to poll at live cadence.
		poll = platform.PollConfig{
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			MaxElapsed:      10 * time.Second,
		}
	}
	client := platform.NewClient(sched, services, platform.DefaultResourceIDs(), poll)

	artifacts := cache.New(cfg.CacheEntries, cfg.CacheTTL.Std())

	specs := make([]pipeline.PlatformSpec, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		specs = append(specs, pipeline.PlatformSpec{
			Name:  p.Name,
			Style: p.Style,
			Render: platform.RenderConfig{
				AspectRatio: p.AspectRatio,
				MaxDuration: p.MaxDuration.Std(),
				Resolution:  p.Resolution,
				FPS:         p.FPS,
			},
			Tags: p.Tags,
		})
	}

	return pipeline.New(client, artifacts, specs, pipeline.Config{
		WindowDays: cfg.WindowDays,
		RunTimeout: cfg.RunTimeout.Std(),
		MinViews:   cfg.MinViews,
	}, log), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
