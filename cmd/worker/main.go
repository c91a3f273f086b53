package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/acquisition"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/kvstore"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/repo"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/jobs"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/providers/search"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/ranking"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := kvstore.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: store connection failed")
	}
	defer handle.Close()

	searcher := search.NewSerpAPI(search.Options{
		APIKey:         cfg.SerpAPIKey,
		BaseURL:        cfg.SerpAPIBaseURL,
		Safe:           cfg.SerpAPISafe,
		RatePerSecond:  cfg.SearchRatePerSecond,
		HTTPClient:     &http.Client{Timeout: cfg.SearchTimeout},
		RequestTimeout: cfg.SearchTimeout,
		Logger:         &logger,
	})
	if !searcher.HasCredentials() {
		logger.Warn().Msg("worker: SERPAPI_KEY missing, every acquisition will fail")
	}

	acquirer := acquisition.New(searcher, acquisition.Options{
		DenyDomains: cfg.DenyDomains,
		Multiplier:  cfg.CandidateMultiplier,
		MaxPages:    cfg.SearchMaxPages,
		Parallel:    cfg.SearchParallelPages,
		Logger:      &logger,
	})

	stores := repo.NewStores(handle.Store, cfg.JobTTL)
	jobsSvc := jobs.NewService(jobs.Deps{
		Jobs:     stores.Jobs,
		Previews: stores.Previews,
		Picks:    stores.Picks,
		Results:  stores.Results,
		Queue:    handle.Store,
		Acquirer: acquirer,
	}, jobs.Options{
		DefaultTargetCount: cfg.DefaultTargetCount,
		Ranking:            ranking.FromLimits(cfg.PreviewLimit, cfg.PerDomainCap, cfg.AllowDomains, cfg.DenyDomains),
		Logger:             &logger,
	})

	opts := worker.Options{
		Concurrency: cfg.WorkerConcurrency,
		PopWait:     cfg.WorkerPopWait,
		MaxAttempts: cfg.WorkerMaxAttempts,
		RetryDelay:  cfg.WorkerRetryDelay,
		Logger:      &logger,
	}
	if handle.Postgres != nil {
		opts.Purger = handle.Postgres
	}
	w := worker.New(handle.Store, jobsSvc, opts)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
}
