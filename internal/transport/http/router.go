// Package httptransport is the thin HTTP layer over the issuer service. It
// decodes requests, delegates to the domain, and translates coded errors into
// JSON envelopes; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"commonsource/internal/did"
	"commonsource/internal/issuer"
	"commonsource/internal/platform/metrics"
	"commonsource/internal/platform/middleware"
)

// Handler carries the dependencies for all routes.
type Handler struct {
	issuer   *issuer.Service
	resolver *did.Resolver
	logger   *slog.Logger
}

// Config wires the router.
type Config struct {
	Issuer    *issuer.Service
	Resolver  *did.Resolver
	Validator middleware.TokenValidator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// NewRouter builds the chi router with the full middleware chain. Issuance
// and verification are public: the nonce exchange and the certificate
// signature are their own authentication. Revocation requires an admin token.
func NewRouter(cfg Config) http.Handler {
	h := &Handler{
		issuer:   cfg.Issuer,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	if cfg.Metrics != nil {
		r.Use(middleware.Latency(cfg.Metrics))
	}

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/certificate/issue", h.handleIssue)
		r.Post("/certificate/verify", h.handleVerify)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.Validator, cfg.Logger))
			r.Post("/certificate/revoke", h.handleRevoke)
		})
		r.Get("/did/{key}", h.handleResolveDID)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
