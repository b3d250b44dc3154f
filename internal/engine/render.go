package engine

import (
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/tmpl"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// renderFunc produces tree-source text with a builder
type renderFunc func(b *tmpl.Builder) (string, error)

var slotExpr = xpath.MustCompile("descendant-or-self::*[local-name()='slot']")

// expand invokes the macro's own logic and returns how to render it; nil
// means no text is produced
func (x *expansion) expand() (renderFunc, error) {
	var render renderFunc

	switch s := x.def.Expansion.(type) {
	case nil:
		x.processed = x.props

	case *macro.ConstructThenTemplate:
		x.processed = x.props
		if s.Create != nil {
			processed, err := s.Create(x.invocation())
			if err != nil {
				return nil, err
			}
			if processed != nil {
				x.processed = processed
			}
		}
		if s.Template != nil {
			render = func(b *tmpl.Builder) (string, error) {
				return s.Template(x.processed, b)
			}
		}

	case *macro.InstantiateThenRender:
		block, err := s.New(x.invocation())
		if err != nil {
			return nil, err
		}
		if block == nil {
			return nil, fmt.Errorf("building block %s: New returned no block", x.def.Name)
		}
		x.processed = block.Properties()
		if x.processed == nil {
			x.processed = x.props
		}
		render = block.Template

	default:
		return nil, fmt.Errorf("unsupported expansion strategy %T", s)
	}

	x.reconcileContexts()
	return render, nil
}

// render runs the text-generation step and parses its output. Malformed
// output is logged and rendered again in diagnostic mode.
func (x *expansion) render(fn renderFunc) ([]*xmltree.Node, error) {
	ns := x.e.fragmentNamespaces(x.node)

	b := x.builder(ns)
	text, err := fn(b)
	if err != nil {
		x.discard(b)
		return nil, err
	}
	x.track(b)

	nodes, perr := xmltree.ParseFragment(text, ns)
	if perr == nil {
		return nodes, nil
	}

	x.log.Warn("Generated fragment is malformed",
		zap.Error(perr),
		zap.String("text", text))
	x.discard(b)

	if !x.e.cfg.DiagnosticRetry {
		return nil, NewMalformedFragment(x.def.Name, perr)
	}
	return x.renderWithDiagnostics(fn, ns, perr)
}

// renderWithDiagnostics renders again with every interpolated value
// validated on its own
func (x *expansion) renderWithDiagnostics(fn renderFunc, ns map[string]string, cause error) ([]*xmltree.Node, error) {
	x.e.metrics.RecordRetry(x.def.Name)

	b := x.builder(ns, tmpl.WithDiagnostics())
	text, err := fn(b)
	if err != nil {
		x.discard(b)
		return nil, err
	}
	x.track(b)

	nodes, perr := xmltree.ParseFragment(text, ns)
	if perr != nil {
		x.discard(b)
		return nil, NewMalformedFragment(x.def.Name, cause)
	}
	return nodes, nil
}

func (x *expansion) builder(ns map[string]string, opts ...tmpl.Option) *tmpl.Builder {
	opts = append([]tmpl.Option{tmpl.WithNamespaces(ns), tmpl.WithLogger(x.log)}, opts...)
	return tmpl.NewBuilder(x.e.store, opts...)
}

// track remembers the keys a builder stored so leaks can be reclaimed
func (x *expansion) track(b *tmpl.Builder) {
	x.keys = append(x.keys, b.Keys()...)
}

// discard drops the keys of text that will never be spliced
func (x *expansion) discard(b *tmpl.Builder) {
	for _, key := range b.Keys() {
		x.e.store.Remove(key)
	}
}

// scopedVisitor sees the resolved contexts plus "this" over the processed
// values
func (x *expansion) scopedVisitor() host.Visitor {
	vars := x.contexts.Vars()
	this := host.NewObjectModel(host.ThisModel, map[string]interface{}(x.processed))
	vars[host.ThisModel] = &host.Context{Model: this, Path: "/"}
	return x.v.With(vars, !x.open())
}

// splice puts the expansion result into the tree, visits it and projects
// the collected children
func (x *expansion) splice(render renderFunc) error {
	scoped := x.scopedVisitor()

	switch {
	case render != nil:
		nodes, err := x.render(render)
		if err != nil {
			return err
		}
		if err := xmltree.ReplaceWith(x.node, nodes...); err != nil {
			return err
		}
		for _, n := range nodes {
			if n.Parent != x.parent {
				continue
			}
			if err := scoped.VisitNode(x.ctx, n); err != nil {
				return err
			}
		}

	case x.def.Fragment != "":
		if err := scoped.InsertFragment(x.ctx, x.def.Fragment, x.node); err != nil {
			return err
		}

	default:
		if err := xmltree.ReplaceWith(x.node); err != nil {
			return err
		}
		return nil
	}

	return x.project()
}

// project moves bucket content into matching slots of the spliced tree.
// Appendable buckets without a slot go to the first spliced element when
// custom data processing is on; leftover slots are removed.
func (x *expansion) project() error {
	var roots []*xmltree.Node
	for _, n := range x.splicedRange() {
		if xmltree.IsElement(n) {
			roots = append(roots, n)
		}
	}

	slots := make(map[string][]*xmltree.Node)
	var order []string
	for _, root := range roots {
		for _, s := range xmlquery.QuerySelectorAll(root, slotExpr) {
			name := xmltree.AttrValue(s, "name")
			if _, seen := slots[name]; !seen {
				order = append(order, name)
			}
			slots[name] = append(slots[name], s)
		}
	}

	var projected []*xmltree.Node
	for _, b := range x.buckets.All() {
		content := append([]*xmltree.Node(nil), b.Content()...)

		if targets := slots[b.Name]; len(targets) > 0 {
			if err := xmltree.ReplaceWith(targets[0], content...); err != nil {
				return err
			}
			slots[b.Name] = targets[1:]
			projected = append(projected, content...)
			continue
		}

		if b.Appendable && x.e.cfg.ProcessCustomData && len(roots) > 0 {
			xmltree.AppendChild(roots[0], content...)
			projected = append(projected, content...)
			continue
		}

		if !b.Empty() {
			x.log.Debug("Aggregation content has no slot, dropped", zap.String("aggregation", b.Name))
		}
	}

	for _, name := range order {
		for _, s := range slots[name] {
			if s.Parent != nil {
				if err := xmltree.ReplaceWith(s); err != nil {
					return err
				}
			}
		}
	}

	if x.visited {
		return nil
	}
	for _, n := range projected {
		if n.Parent == nil || !xmltree.IsElement(n) {
			continue
		}
		if err := x.v.VisitNode(x.ctx, n); err != nil {
			return err
		}
	}
	return nil
}
