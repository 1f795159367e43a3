package provider

import "context"

// Status is a provider health status.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HealthStatus carries detailed provider health.
type HealthStatus struct {
	Status  Status
	Message string
	Details map[string]any
}

// HealthChecker is implemented by providers that can report more than
// the IsAvailable bool, e.g. a remote engine behind a circuit breaker.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}
