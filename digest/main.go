package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/policy-radar/internal/config"
	"github.com/DeafMist/policy-radar/internal/dedupe"
	"github.com/DeafMist/policy-radar/internal/gemini"
	"github.com/DeafMist/policy-radar/internal/logger"
	"github.com/DeafMist/policy-radar/internal/models"
	"github.com/DeafMist/policy-radar/internal/publish"
)

type policyFetcher interface {
	FetchPolicies(ctx context.Context, date string) (*models.SearchResponse, error)
}

func main() {
	log := logger.New("digest")
	cfg, err := config.LoadDigest()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client := gemini.New(ctx, gemini.Options{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GeminiTimeout,
	}, log)

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)
	publisher := publish.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cache, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("close publisher", slog.Any("err", err))
		}
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("digest job running",
		slog.Duration("interval", cfg.Interval),
		slog.String("topic", cfg.KafkaTopic),
		slog.String("timezone", cfg.Timezone.String()),
	)

	// Run immediately on start; a failed run waits for the next tick
	runOnce(ctx, log, client, publisher, cfg.Timezone, time.Now)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, client, publisher, cfg.Timezone, time.Now)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, fetcher policyFetcher, pub publish.Publisher, loc *time.Location, now func() time.Time) {
	subCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	date := now().In(loc).Format("2006-01-02")
	resp, err := fetcher.FetchPolicies(subCtx, date)
	if err != nil {
		log.Warn("digest fetch failed (will retry on next interval)", slog.String("date", date), slog.Any("err", err))
		return
	}

	published, err := pub.Publish(subCtx, resp)
	if err != nil {
		log.Warn("digest publish failed (will retry on next interval)", slog.String("date", date), slog.Any("err", err))
		return
	}

	if published > 0 {
		log.Info("digest run completed",
			slog.String("date", date),
			slog.Int("policies", len(resp.Policies)),
			slog.Int("published", published),
		)
	} else {
		log.Debug("digest run completed, nothing new to publish", slog.String("date", date))
	}
}
