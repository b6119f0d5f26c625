package health

import "context"

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks LLM provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
