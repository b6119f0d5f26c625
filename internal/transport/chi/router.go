package chi

import (
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/metrics"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	Env             string
	CORSOrigins     []string
	MaxRequestBytes int64
	MetricsEnabled  bool
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter *RateLimiter
	Auth        *Authenticator
	Logger      *zap.Logger
}

// NewRouter mounts the API routes and middleware stack.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{Disabled: true})
	}

	r := gochi.NewRouter()
	r.Use(CorrelationID)
	r.Use(JSONRecoverer(logger))
	r.Use(WideEvent(logger))
	r.Use(metrics.Middleware())
	r.Use(CORS(cfg.CORSOrigins, cfg.Env))
	if cfg.MaxRequestBytes > 0 {
		r.Use(BodyLimit(cfg.MaxRequestBytes))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}
	r.NotFound(s.NotFound)
	r.MethodNotAllowed(s.MethodNotAllowed)

	r.Get("/", s.Root)
	mountProbes(r, s, cfg.MetricsEnabled)

	anyRole := auth.RequireRoles(RoleAdmin, RoleAnalyst, RoleUser)
	r.Route("/api", func(r gochi.Router) {
		mountProbes(r, s, cfg.MetricsEnabled)

		r.With(anyRole).Get("/dashboard", s.DashboardSummary)
		r.With(anyRole).Get("/dashboard/summary", s.DashboardSummary)
		r.With(anyRole).Get("/policies", s.ListPolicies)
		r.With(anyRole).Get("/policies/{policyID}", s.GetPolicy)

		r.Get("/gazettes", s.ListGazettes)
		r.Get("/policy-analyses", s.PolicyAnalyses)
		r.Post("/policy-query", s.PolicyQuery)

		r.With(auth.RequireRoles(RoleAdmin, RoleAnalyst)).Post("/analysis/run", s.RunAnalysis)

		r.Post("/assistant", s.AssistantSafe)
		r.With(anyRole).Post("/assistant/chat", s.AssistantChat)
	})

	return r
}

// mountProbes registers the unauthenticated health, readiness and metrics routes.
func mountProbes(r gochi.Router, s *Server, withMetrics bool) {
	r.Get("/health", s.Health)
	r.Get("/readiness", s.Readiness)
	if withMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
}
