package provider

import "context"

// Provider is the base interface every pluggable backend implements.
type Provider interface {
	Name() string
	// IsAvailable reports whether the provider can serve requests right now.
	// Implementations keep it cheap: no network round trips.
	IsAvailable(ctx context.Context) bool
}

// Factory creates a provider from a loosely typed configuration map.
// A nil map means "use defaults".
type Factory[T Provider] func(cfg map[string]any) (T, error)
