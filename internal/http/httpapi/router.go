package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hanizaheer02/impact-tracker/internal/http/handlers"
	"github.com/hanizaheer02/impact-tracker/internal/middleware"
)

type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N("en", opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/metrics", app.Metrics)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Get("/v1/regions", app.RegionsList)
	r.Get("/v1/stats", app.StatsGet)
	r.Get("/v1/donations/recent", app.DonationsRecent)
	r.Get("/v1/map", app.MapGet)

	r.Route("/v1/stream", func(r chi.Router) {
		r.Get("/stats", app.StreamStats)
		r.Get("/recent", app.StreamRecent)
		r.Get("/map", app.StreamMap)
	})

	submit := []func(http.Handler) http.Handler{middleware.OptionalAuthJWT(opts.JWTSecret)}
	if opts.RateLimitPerMin > 0 {
		submit = append([]func(http.Handler) http.Handler{middleware.RateLimit(opts.RateLimitPerMin, time.Minute)}, submit...)
	}
	r.With(submit...).Post("/v1/donations", app.DonationsCreate)

	r.Route("/v1/me", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Get("/donations", app.MyDonations)
		r.Get("/stream", app.StreamMyDonations)
	})

	return r
}
