package provider

import "context"

// Initializable is implemented by providers that need setup before use,
// such as fetching a model file. Init must be idempotent.
type Initializable interface {
	Init(ctx context.Context) error
}

// Closeable is implemented by providers holding resources that need
// explicit cleanup.
type Closeable interface {
	Close(ctx context.Context) error
}
