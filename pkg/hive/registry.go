package hive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry maps backend types to driver constructors. The zero value is not
// usable; call NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	ctors   map[BackendType]Constructor
	metrics *metrics
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRegisterer enables Prometheus metrics for every Client the registry
// creates.
func WithRegisterer(reg prometheus.Registerer) RegistryOption {
	return func(r *Registry) {
		r.metrics = newMetrics(reg)
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{ctors: make(map[BackendType]Constructor)}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register binds ctor to backend, replacing any previous binding.
func (r *Registry) Register(backend BackendType, ctor Constructor) {
	if backend == BackendNone || ctor == nil {
		panic(fmt.Sprintf("hive: invalid registration for backend %s", backend))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctors[backend] = ctor
}

// Backends returns the registered backend types in ascending order.
func (r *Registry) Backends() []BackendType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BackendType, 0, len(r.ctors))
	for b := BackendNone + 1; b <= BackendS3; b++ {
		if _, ok := r.ctors[b]; ok {
			out = append(out, b)
		}
	}

	return out
}

// NewClient validates opts and constructs a Client bound to the selected
// backend. Validation stops at the first failure: an empty persistent
// location, a location that is not an existing directory, and an unset
// backend are ErrInvalidArgs; an unregistered backend is ErrNotSupported.
// A constructor failure is returned as is.
func (r *Registry) NewClient(ctx context.Context, opts Options) (*Client, error) {
	const op = "registry.new_client"

	if opts.PersistentLocation == "" {
		return nil, newError(CodeInvalidArgs, op, fmt.Errorf("persistent location is empty"))
	}

	fi, err := os.Stat(opts.PersistentLocation)
	if err != nil {
		return nil, newError(CodeInvalidArgs, op, err)
	}

	if !fi.IsDir() {
		return nil, newError(CodeInvalidArgs, op,
			fmt.Errorf("persistent location %s is not a directory", opts.PersistentLocation))
	}

	if opts.Backend == BackendNone {
		return nil, newError(CodeInvalidArgs, op, fmt.Errorf("backend not set"))
	}

	r.mu.RLock()
	ctor, ok := r.ctors[opts.Backend]
	r.mu.RUnlock()

	if !ok {
		return nil, newError(CodeNotSupported, op, fmt.Errorf("backend %s not registered", opts.Backend))
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	drv, err := ctor(ctx, &opts)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("client created",
		slog.String("backend", opts.Backend.String()),
		slog.String("location", opts.PersistentLocation),
	)

	return newClient(opts.Backend, drv, opts.Logger, r.metrics), nil
}
