package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"escrowd/escrow"
	"escrowd/gateway/middleware"
	"escrowd/state"
)

// Config wires the REST facade to the engine and its middleware stack.
type Config struct {
	Engine      *escrow.Engine
	State       *state.EscrowState
	RateLimiter *middleware.RateLimiter
	Obs         *middleware.Observability
}

// New builds the gateway router: a REST surface over the four escrow
// operations plus record reads, health and metrics.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	routes := &escrowRoutes{engine: cfg.Engine, state: cfg.State}
	r.Route("/v1/escrows", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware())
		}
		if cfg.Obs != nil {
			sr.Use(cfg.Obs.Middleware("escrows"))
		}
		sr.Post("/", routes.create)
		sr.Get("/{id}", routes.get)
		sr.Post("/{id}/confirm-delivery", routes.confirmDelivery)
		sr.Post("/{id}/confirm-receipt", routes.confirmReceipt)
		sr.Post("/{id}/auto-release", routes.autoRelease)
	})

	if cfg.Obs != nil {
		r.Handle("/metrics", cfg.Obs.MetricsHandler())
	}

	return r
}
