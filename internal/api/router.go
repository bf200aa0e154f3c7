// Package api exposes the trust router over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/config"
	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/monitoring"
	"github.com/sells-group/trust-router/internal/pipeline"
	"github.com/sells-group/trust-router/internal/store"
)

// Analyzer runs and labels analyses. *pipeline.Pipeline satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Label(ctx context.Context, auditID string, outcome model.Outcome) error
}

// AuditReader reads the audit trail. store.Store satisfies it.
type AuditReader interface {
	GetAudit(ctx context.Context, id string) (*model.AuditRecord, error)
	ListAudits(ctx context.Context, filter store.AuditFilter) ([]model.AuditRecord, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes. Health may be nil.
type Deps struct {
	Analyzer  Analyzer
	Audits    AuditReader
	Collector *monitoring.Collector
	Policies  pipeline.PolicySource
	Health    Pinger
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps, cfg config.ServerConfig) http.Handler {
	h := &handlers{deps: d, log: zap.L().With(zap.String("component", "api"))}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(logging(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

		r.Post("/analyze", h.analyze)
		r.Get("/policy", h.getPolicy)

		r.Route("/audits", func(r chi.Router) {
			r.Get("/", h.listAudits)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getAudit)
				r.Post("/label", h.label)
			})
		})

		r.Get("/metrics", h.getMetrics)
		r.Get("/report.xlsx", h.exportReport)
	})

	return r
}
