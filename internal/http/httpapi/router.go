package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"boongle/internal/http/handlers"
	"boongle/internal/middleware"
	"boongle/internal/obs"
)

// Options configures the router middleware stack.
type Options struct {
	AllowedOrigins  []string
	RateLimitPerMin int
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		obs.Instrument(routePattern),
	)

	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Health
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionSync(app.Identity, opts.Logger))

			r.Post("/session", app.SignIn)
			r.Delete("/session", app.SignOut)

			r.Get("/me", app.Me)
			r.Post("/me/refresh", app.Refresh)
			r.Put("/credential", app.SetCredential)

			r.Get("/plans", app.Plans)
			r.Post("/plans/claim", app.ClaimPlan)

			r.Route("/images", func(r chi.Router) {
				r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/generate", app.ImagesGenerate)
				r.Get("/", app.ImagesList)
				r.Get("/archive", app.ImageZip)
				r.Get("/{id}/download", app.ImageDownload)
			})
		})
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
