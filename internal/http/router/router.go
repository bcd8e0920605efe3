// Package router arma el árbol de rutas chi de la API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/fitlink/internal/http/controllers/garmin"
	"github.com/dropDatabas3/fitlink/internal/http/controllers/health"
	"github.com/dropDatabas3/fitlink/internal/http/controllers/strava"
	httperrors "github.com/dropDatabas3/fitlink/internal/http/errors"
	mw "github.com/dropDatabas3/fitlink/internal/http/middlewares"
	"github.com/dropDatabas3/fitlink/internal/rate"
)

// Deps agrupa controllers y piezas transversales del router.
type Deps struct {
	Auth    mw.AccessParser
	Garmin  *garmin.Controller
	Strava  *strava.Controller
	Health  *health.Controller
	Metrics http.Handler // /metrics; nil = no se expone

	// ConnectLimiter limita por IP los endpoints que prueban credenciales
	// contra el proveedor. nil = sin límite.
	ConnectLimiter rate.Limiter
	CORSOrigins    []string
}

// New devuelve el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
		mw.WithCORS(deps.CORSOrigins),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Healthz)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.RequireAuth(deps.Auth), mw.WithNoStore())

		connectLimit := mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: deps.ConnectLimiter,
			KeyFunc: mw.IPPathRateKey,
		})

		if g := deps.Garmin; g != nil {
			r.Route("/garmin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(connectLimit)
					r.Post("/connect", g.Connect)
					r.Post("/connect/mfa", g.ConnectMFA)
					r.Post("/test-credentials", g.TestCredentials)
				})
				r.Get("/connection", g.GetConnection)
				r.Delete("/connection", g.DeleteConnection)
				r.Post("/sync", g.Sync)
			})
		}

		if s := deps.Strava; s != nil {
			r.Route("/strava", func(r chi.Router) {
				r.Get("/config", s.GetConfig)
				r.Post("/config", s.SaveConfig)
				r.Group(func(r chi.Router) {
					r.Use(connectLimit)
					r.Get("/authorize", s.Authorize)
					r.Post("/callback", s.Callback)
				})
				r.Get("/connection", s.GetConnection)
				r.Delete("/connection", s.DeleteConnection)
				r.Post("/sync", s.Sync)
			})
		}
	})

	return r
}
