package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/kvstore"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/adapter/repo"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/finalize"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/http/handlers"
	httpapi "github.com/ahmetbombaplant-boop/instagramposts222/internal/http/httpapi"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/jobs"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/providers/render"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/ranking"
)

const drainTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := kvstore.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: store connection failed")
	}
	defer handle.Close()

	stores := repo.NewStores(handle.Store, cfg.JobTTL)

	jobsSvc := jobs.NewService(jobs.Deps{
		Jobs:     stores.Jobs,
		Previews: stores.Previews,
		Picks:    stores.Picks,
		Results:  stores.Results,
		Queue:    handle.Store,
	}, jobs.Options{
		DefaultTargetCount: cfg.DefaultTargetCount,
		Ranking:            ranking.FromLimits(cfg.PreviewLimit, cfg.PerDomainCap, cfg.AllowDomains, cfg.DenyDomains),
		Logger:             &logger,
	})

	if cfg.RenderWebhookURL == "" {
		logger.Warn().Msg("api: RENDER_WEBHOOK_URL not set, finalize dispatches will fail")
	}
	dispatcher := render.NewWebhook(render.Options{
		URL:     cfg.RenderWebhookURL,
		Secret:  cfg.CallbackSecret,
		Timeout: cfg.RenderTimeout,
		Logger:  &logger,
	})
	finalizer := finalize.New(finalize.Deps{
		Jobs:       stores.Jobs,
		Previews:   stores.Previews,
		Picks:      stores.Picks,
		Results:    stores.Results,
		Locker:     stores.Locker,
		Dispatcher: dispatcher,
	}, finalize.Options{
		LockTTL:         cfg.FinalizeTTL,
		DispatchTimeout: cfg.RenderTimeout,
		CallbackURL:     cfg.CallbackURL(),
		Logger:          &logger,
	})

	app := handlers.NewApp(jobsSvc, finalizer, handle.Store, logger)
	router := httpapi.NewRouter(app, logger, httpapi.Options{
		APIToken:        cfg.APIToken,
		CallbackSecret:  cfg.CallbackSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("backend", cfg.StoreBackend).Msg("api: listening")
		if err := server.Serve(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}

	drained := make(chan struct{})
	go func() {
		finalizer.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.Warn().Msg("api: render dispatches still in flight at exit")
	}
	logger.Info().Msg("api: stopped")
}
