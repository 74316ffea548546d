// Package httpapi is the JSON-over-HTTP surface of the server.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/gate"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/outfits"
	"github.com/dmitrijs2005/stylist/internal/server/services"
	"github.com/dmitrijs2005/stylist/internal/server/tryon"
)

// Pinger reports database readiness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Accounts      *services.AccountService
	Tokens        *services.TokenService
	Ledger        *services.EntitlementLedger
	Billing       *services.BillingService
	Gate          *gate.Gate
	TryOns        *tryon.Orchestrator
	Jobs          *tryon.Registry
	Outfits       *outfits.Service
	Limiter       *RateLimiter
	DB            Pinger
	Gatherer      prometheus.Gatherer
	Metrics       metrics.Recorder
	Logger        logging.Logger
	BillingSecret string
}

type api struct {
	Deps
	errs errorWriter
}

// NewRouter wires every route.
//
//	/health, /metrics                     public
//	/api/auth/*                           public
//	/api/me, /api/entitlement, ...        valid access token
//	POST /api/tryon                       PREMIUM, rate limited
//	/internal/billing/events              shared secret
func NewRouter(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Limiter == nil {
		d.Limiter = NewRateLimiter(0)
	}
	logger := d.Logger.With("module", "http")
	a := &api{Deps: d, errs: errorWriter{logger: logger}}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger, d.Metrics))
	r.Use(chimw.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, APIError{Code: CodeNotFound, Message: "not found"})
	})

	r.Get("/health", a.health)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/guest", a.guest)
		r.Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.Post("/logout", a.logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(d.Gate.Require("", a.errs.write))

			r.Get("/me", a.me)
			r.Delete("/me", a.deleteMe)
			r.Get("/entitlement", a.entitlement)
			r.Get("/usage", a.usage)
			r.Get("/tryon/{id}", a.getTryOn)
			r.Post("/outfits", a.generateOutfits)
		})

		r.Group(func(r chi.Router) {
			r.Use(d.Gate.Require(models.TierPremium, a.errs.write))
			r.Use(d.Limiter.Middleware(a.errs))

			r.Post("/tryon", a.submitTryOn)
		})
	})

	r.Post("/internal/billing/events", a.billingEvent)

	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		if err := a.DB.PingContext(r.Context()); err != nil {
			a.errs.logger.Error(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
