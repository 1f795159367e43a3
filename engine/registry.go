package engine

import (
	"context"
	"time"

	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/provider"
	"github.com/kbukum/whisper-subtitle/resilience"
)

// Descriptor summarizes an engine for listings.
type Descriptor struct {
	Name      string         `json:"name"`
	Ready     bool           `json:"ready"`
	Models    []string       `json:"models"`
	Languages []string       `json:"languages"`
	Config    map[string]any `json:"config,omitempty"`
}

// Registry maps engine names to backend factories and caches one backend
// per name. Engines handed out share a single bulkhead.
type Registry struct {
	backends *provider.Registry[Backend]
	settings map[string]map[string]any
	opts     []Option
	log      *logger.Logger
}

// NewRegistry creates an empty registry. cfg.Backends supplies the base
// settings for each named factory.
func NewRegistry(cfg Config, metrics *observability.Metrics) *Registry {
	cfg.ApplyDefaults()
	bulkhead := resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "engines",
		MaxConcurrent: cfg.MaxConcurrent,
		MaxWait:       -1,
	})
	return &Registry{
		backends: provider.NewRegistry[Backend](),
		settings: cfg.Backends,
		opts: []Option{
			WithBulkhead(bulkhead),
			WithTimeout(cfg.Timeout),
			WithMetrics(metrics),
		},
		log: logger.WithComponent("engine-registry"),
	}
}

// Register stores factory under name. Registering a name twice replaces the
// earlier factory and its cached backend.
func (r *Registry) Register(name string, factory provider.Factory[Backend]) {
	base := r.settings[name]
	wrapped := func(cfg map[string]any) (Backend, error) {
		return factory(merge(base, cfg))
	}
	if r.backends.RegisterFactory(name, wrapped) {
		r.log.Warn("engine registration replaced", logger.Fields(logger.FieldEngine, name))
		return
	}
	r.log.Debug("engine registered", logger.Fields(logger.FieldEngine, name))
}

// GetEngine returns the engine for name. A nil cfg reuses the cached
// backend, creating it on first use; a non-nil cfg builds a fresh backend
// with cfg overlaid on the configured settings and caches it.
func (r *Registry) GetEngine(name string, cfg map[string]any) (*Engine, error) {
	if !r.backends.Has(name) {
		return nil, errors.NotFound("engine", name)
	}

	var (
		backend Backend
		err     error
	)
	if cfg == nil {
		backend, err = r.backends.GetOrCreate(name)
	} else {
		backend, err = r.backends.Create(name, cfg)
		if err == nil {
			r.backends.Set(name, backend)
		}
	}
	if err != nil {
		return nil, errors.ExternalServiceError(name, err)
	}
	return New(backend, r.opts...), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool { return r.backends.Has(name) }

// ListAll returns all registered names, sorted.
func (r *Registry) ListAll() []string { return r.backends.List() }

// ListAvailable returns the registered names whose backend reports ready.
// Backends that fail to construct are skipped.
func (r *Registry) ListAvailable(ctx context.Context) []string {
	var names []string
	for _, name := range r.ListAll() {
		eng, err := r.GetEngine(name, nil)
		if err != nil {
			r.log.Warn("engine unavailable", logger.ErrorFields("create_engine", err))
			continue
		}
		if eng.IsAvailable(ctx) {
			names = append(names, name)
		}
	}
	return names
}

// Describe returns the descriptor of one engine.
func (r *Registry) Describe(ctx context.Context, name string) (Descriptor, error) {
	eng, err := r.GetEngine(name, nil)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Name:      name,
		Ready:     eng.IsAvailable(ctx),
		Models:    eng.Models(),
		Languages: eng.Languages(),
		Config:    eng.Config(),
	}, nil
}

// DescribeAll describes every engine that can be constructed.
func (r *Registry) DescribeAll(ctx context.Context) map[string]Descriptor {
	out := make(map[string]Descriptor)
	for _, name := range r.ListAll() {
		d, err := r.Describe(ctx, name)
		if err != nil {
			r.log.Warn("describe engine failed", logger.ErrorFields("describe_engine", err))
			continue
		}
		out[name] = d
	}
	return out
}

// Initialize prepares the named engine, bounded by timeout.
func (r *Registry) Initialize(ctx context.Context, name string, timeout time.Duration) error {
	eng, err := r.GetEngine(name, nil)
	if err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return eng.Initialize(ctx)
}

// Close closes every cached backend.
func (r *Registry) Close(ctx context.Context) error {
	for _, name := range r.ListAll() {
		backend, ok := r.backends.Get(name)
		if !ok {
			continue
		}
		if err := New(backend, r.opts...).Close(ctx); err != nil {
			r.log.Warn("close engine failed", logger.ErrorFields("close_engine", err))
		}
	}
	return nil
}
