package engine

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/indirect"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/config"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// Engine expands registered building blocks
type Engine struct {
	registry   *macro.Registry
	store      *indirect.Store
	log        *zap.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	cfg        config.EngineConfig
	namespaces map[string]string
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig sets engine behaviour
func WithConfig(cfg config.EngineConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer records every expansion as a span
func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithStore shares an indirect store
func WithStore(s *indirect.Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithRegistry shares a registry
func WithRegistry(r *macro.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithNamespaces sets prefix bindings available to every generated
// fragment, below the bindings in scope at the expanded node
func WithNamespaces(ns map[string]string) Option {
	return func(e *Engine) { e.namespaces = ns }
}

// New creates an engine with the default configuration
func New(opts ...Option) *Engine {
	e := &Engine{
		registry: macro.NewRegistry(),
		store:    indirect.NewStore(),
		log:      zap.NewNop(),
		cfg:      config.Default().Engine,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register installs a definition under its namespace and public alias
func (e *Engine) Register(d *macro.Definition) error {
	if err := e.registry.Register(d); err != nil {
		return err
	}
	e.metrics.SetRegisteredBlocks(e.registry.Len())
	e.log.Debug("Registered building block",
		zap.String("name", d.Name),
		zap.String("namespace", d.Namespace),
		zap.Stringer("version", d.Version()))
	return nil
}

// Registry returns the definition registry
func (e *Engine) Registry() *macro.Registry {
	return e.registry
}

// Store returns the indirect store
func (e *Engine) Store() *indirect.Store {
	return e.store
}

// Handler implements host.HandlerLookup. The returned handler never fails:
// expansion errors become diagnostic fragments in the tree.
func (e *Engine) Handler(space, local string) (host.NodeHandler, bool) {
	d, ok := e.registry.Lookup(space, local)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, node *xmltree.Node, v host.Visitor) error {
		e.Expand(ctx, d, node, v)
		return nil
	}, true
}

// fragmentNamespaces merges engine defaults with the bindings in scope at n
func (e *Engine) fragmentNamespaces(n *xmltree.Node) map[string]string {
	out := make(map[string]string, len(e.namespaces)+4)
	for k, v := range e.namespaces {
		out[k] = v
	}
	for k, v := range xmltree.Namespaces(n) {
		if k != "xml" {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
