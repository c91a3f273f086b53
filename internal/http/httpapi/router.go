package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/http/handlers"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/infra"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/middleware"
)

// CallbackPath is where the render collaborator posts final assets.
const CallbackPath = "/v1/callbacks/render"

type Options struct {
	APIToken        string
	CallbackSecret  string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, logger infra.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.With(middleware.Signature(opts.CallbackSecret)).Post(CallbackPath, app.RenderCallback)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Use(middleware.BearerToken(opts.APIToken))
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		r.Post("/", app.CreateJob)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", app.JobStatus)
			r.Get("/previews", app.JobPreviews)
			r.Get("/picks", app.JobPicks)
			r.Put("/picks", app.SetPicks)
			r.Post("/picks/toggle", app.TogglePick)
			r.Post("/finalize", app.FinalizeJob)
			r.Get("/result", app.JobResult)
		})
	})

	return r
}
