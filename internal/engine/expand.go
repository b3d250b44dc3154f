package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/blockforge/internal/logging"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/shared/id"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// State is a step of one expansion
type State int

const (
	StateInit State = iota
	StatePropertiesResolved
	StateContextsResolved
	StateChildrenClassified
	StateExpanded
	StateSpliced
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"init",
	"properties-resolved",
	"contexts-resolved",
	"children-classified",
	"expanded",
	"spliced",
	"done",
	"failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Result describes a finished expansion
type Result struct {
	ID       id.ExpansionID
	State    State
	Props    macro.Values
	Contexts *macro.ContextSet
	Missing  map[string]bool
	Nodes    []*xmltree.Node
	Err      *ExpansionError
	Leaked   int
	Duration time.Duration
}

// Failed reports whether the expansion ended in a diagnostic
func (r *Result) Failed() bool {
	return r.State == StateFailed
}

// expansion is the state of one building block invocation
type expansion struct {
	e        *Engine
	ctx      context.Context
	def      *macro.Definition
	md       *macro.Metadata
	node     *xmltree.Node
	v        host.Visitor
	settings *host.Settings
	id       id.ExpansionID
	log      *zap.Logger
	state    State

	// splice cursors, taken before any mutation
	parent, before, after *xmltree.Node

	source    string
	public    bool
	initial   macro.Values
	props     macro.Values
	processed macro.Values
	contexts  *macro.ContextSet
	missing   map[string]bool
	buckets   *macro.Buckets
	visited   bool
	keys      []string
	failure   *ExpansionError
}

// Expand runs one building block expansion on node. It never returns an
// error: a failure replaces node with a diagnostic fragment.
func (e *Engine) Expand(ctx context.Context, d *macro.Definition, node *xmltree.Node, v host.Visitor) *Result {
	settings := v.Settings()
	if settings == nil {
		settings = host.NewSettings()
	}
	if settings.Models == nil {
		settings.Models = make(map[string]host.Model)
	}
	if settings.BindingContexts == nil {
		settings.BindingContexts = make(map[string]*host.Context)
	}

	x := &expansion{
		e:        e,
		ctx:      ctx,
		def:      d,
		md:       macro.ResolveMetadata(d),
		node:     node,
		v:        v,
		settings: settings,
		id:       id.NewExpansionID(),
		parent:   node.Parent,
		before:   node.PrevSibling,
		after:    node.NextSibling,
		source:   xmltree.Serialize(node),
		props:    make(macro.Values),
		contexts: macro.NewContextSet(),
		missing:  make(map[string]bool),
		buckets:  macro.NewBuckets(),
	}
	x.log = logging.ForExpansion(e.log, d.Name, x.id.String())

	prevMacro := settings.CurrentMacro
	prevPath := settings.CurrentContextPath
	settings.CurrentMacro = d.Name
	defer func() {
		settings.CurrentMacro = prevMacro
		settings.CurrentContextPath = prevPath
	}()

	if e.tracer != nil {
		var span *tracing.Span
		span, x.ctx = e.tracer.StartSpan(ctx, d.Name, tracing.SpanID(x.id))
		defer func() {
			span.SetTag(logging.FieldState, x.state.String())
			if x.state == StateFailed && x.failure != nil {
				span.SetError(x.failure)
			}
			span.Finish()
			e.tracer.Submit(span)
		}()
	}

	timer := monitoring.NewTimer(e.metrics, d.Name)
	x.log.Debug("Expanding building block", zap.Stringer("version", d.Version()))

	result := &Result{ID: x.id, Contexts: x.contexts, Missing: x.missing}
	if err := x.run(); err != nil {
		result.Err = err
		x.failure = err
		x.fail(err)
	} else {
		x.transition(StateDone)
	}

	result.Leaked = x.reclaim()
	result.State = x.state
	result.Props = x.processed
	if result.Props == nil {
		result.Props = x.props
	}
	result.Nodes = x.splicedRange()
	result.Duration = timer.Stop(x.state.String())
	return result
}

func (x *expansion) transition(s State) {
	x.state = s
	x.log.Debug("Expansion state", zap.Stringer(logging.FieldState, s))
}

// run drives the state machine up to Spliced. Panics in macro code are
// recovered as unexpected errors.
func (x *expansion) run() (err *ExpansionError) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(x.def.Name, r)
		}
	}()

	x.public = x.settings.Public ||
		(x.def.PublicNamespace != "" && x.def.PublicNamespace != x.def.Namespace && x.node.NamespaceURI == x.def.PublicNamespace)

	if e := x.resolveProperties(); e != nil {
		return classify(x.def.Name, e)
	}
	x.initial = x.props.Clone()
	x.transition(StatePropertiesResolved)

	x.resolveContexts()
	x.transition(StateContextsResolved)

	if e := x.classifyChildren(); e != nil {
		return classify(x.def.Name, e)
	}
	x.transition(StateChildrenClassified)

	render, e := x.expand()
	if e != nil {
		return classify(x.def.Name, e)
	}
	x.transition(StateExpanded)

	if e := x.splice(render); e != nil {
		return classify(x.def.Name, e)
	}
	x.transition(StateSpliced)
	return nil
}

// open reports whether contexts may be inferred from the ambient visitor
func (x *expansion) open() bool {
	return x.md.Open || x.e.cfg.OpenMode
}

// invocation is what macro code sees
func (x *expansion) invocation() *macro.Invocation {
	return &macro.Invocation{
		Definition:   x.def,
		Metadata:     x.md,
		Node:         x.node,
		Props:        x.props,
		Contexts:     x.contexts,
		Aggregations: x.buckets,
		Settings:     x.settings,
	}
}

// splicedRange returns the nodes currently between the splice cursors
func (x *expansion) splicedRange() []*xmltree.Node {
	if x.parent == nil {
		return nil
	}
	children := xmltree.Children(x.parent)
	start := 0
	if x.before != nil && x.before.Parent == x.parent {
		start = xmltree.Index(x.before) + 1
	}
	end := len(children)
	if x.after != nil && x.after.Parent == x.parent {
		end = xmltree.Index(x.after)
	}
	if start > end {
		return nil
	}
	return children[start:end]
}

// reclaim removes store keys created during this expansion that nobody
// consumed
func (x *expansion) reclaim() int {
	defer x.e.metrics.SetStoreSize(x.e.store.Len())
	if !x.e.cfg.ReclaimLeaks {
		return 0
	}

	leaked := 0
	for _, key := range x.keys {
		if x.e.store.Remove(key) {
			leaked++
		}
	}
	if leaked > 0 {
		x.log.Warn("Reclaimed unconsumed indirect store keys", zap.Int("count", leaked))
		x.e.metrics.AddLeakedKeys(leaked)
	}
	return leaked
}
