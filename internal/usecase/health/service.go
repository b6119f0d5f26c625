package health

import "context"

// Status represents the aggregated readiness.
type Status string

const (
	// Ready indicates all components are operational.
	Ready Status = "ready"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component check outcome.
type CheckResult string

const (
	// Up indicates a passing check.
	Up CheckResult = "up"
	// Down indicates a failing check.
	Down CheckResult = "down"
)

// Report aggregates check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Liveness is the static report of a running process.
func Liveness() map[string]any {
	return map[string]any{"status": "ok", "checks": map[string]string{"service": "up"}}
}

// Service coordinates readiness checks.
type Service struct {
	cache    Pinger
	vectors  Pinger
	provider ProviderChecker
}

// New creates a Service. provider can be nil.
func New(cache, vectors Pinger, provider ProviderChecker) *Service {
	return &Service{cache: cache, vectors: vectors, provider: provider}
}

// Check runs readiness checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		"redis":        result(s.cache.Ping(ctx)),
		"vector_store": result(s.vectors.Ping(ctx)),
	}
	if s.provider != nil {
		checks["llm"] = result(s.provider.HealthCheck(ctx))
	}

	status := Ready
	for _, v := range checks {
		if v == Down {
			status = Degraded
			break
		}
	}
	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return Down
	}
	return Up
}
