package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// ErrUnresolved is returned when a binding names no variable or model
var ErrUnresolved = errors.New("binding not resolvable")

var exprRef = regexp.MustCompile(`\$\{([^}]*)\}`)

// Visitor walks a tree in memory. It dispatches macro tags to a
// HandlerLookup, resolves bindings in attributes and expands templating
// directives.
type Visitor struct {
	settings  *host.Settings
	handlers  host.HandlerLookup
	fragments *Library
	runtime   *Runtime
	log       *zap.Logger
	vars      map[string]*host.Context
}

// Option configures a Visitor
type Option func(*Visitor)

// WithHandlers sets the macro handler lookup
func WithHandlers(h host.HandlerLookup) Option {
	return func(v *Visitor) { v.handlers = h }
}

// WithFragments sets the fragment library
func WithFragments(l *Library) Option {
	return func(v *Visitor) {
		if l != nil {
			v.fragments = l
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(v *Visitor) {
		if log != nil {
			v.log = log
		}
	}
}

// WithRuntime shares an expression runtime
func WithRuntime(r *Runtime) Option {
	return func(v *Visitor) {
		if r != nil {
			v.runtime = r
		}
	}
}

// WithVars seeds named variables
func WithVars(vars map[string]*host.Context) Option {
	return func(v *Visitor) {
		for name, c := range vars {
			v.vars[name] = c
		}
	}
}

// New creates a visitor over settings. nil settings start empty.
func New(settings *host.Settings, opts ...Option) *Visitor {
	if settings == nil {
		settings = host.NewSettings()
	}
	v := &Visitor{
		settings:  settings,
		fragments: NewLibrary(),
		log:       zap.NewNop(),
		vars:      make(map[string]*host.Context),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.runtime == nil {
		v.runtime = NewRuntime(DefaultTimeout)
	}
	return v
}

func (v *Visitor) Settings() *host.Settings {
	return v.settings
}

// With returns a visitor sharing settings, handlers and fragments with
// additional variables. With replace the outer variables are dropped.
func (v *Visitor) With(vars map[string]*host.Context, replace bool) host.Visitor {
	scoped := *v
	scoped.vars = make(map[string]*host.Context, len(v.vars)+len(vars))
	if !replace {
		for name, c := range v.vars {
			scoped.vars[name] = c
		}
	}
	for name, c := range vars {
		scoped.vars[name] = c
	}
	return &scoped
}

// VisitNode visits one node. A registered macro takes over the node
// entirely; anything else has its attributes and children visited.
func (v *Visitor) VisitNode(ctx context.Context, node *xmltree.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch node.Type {
	case xmltree.DocumentNode:
		return v.VisitChildNodes(ctx, node)
	case xmltree.ElementNode:
	default:
		return nil
	}

	if v.handlers != nil {
		if h, ok := v.handlers.Handler(node.NamespaceURI, node.Data); ok {
			return h(ctx, node, v)
		}
	}

	if node.NamespaceURI == host.TemplateNamespace {
		return v.directive(ctx, node)
	}

	if err := v.VisitAttributes(ctx, node); err != nil {
		return err
	}
	return v.VisitChildNodes(ctx, node)
}

// VisitChildNodes visits the children of node in order. The cursor is
// taken before each visit, so nodes a macro splices in place of a child
// are skipped; content left behind by a directive is walked.
func (v *Visitor) VisitChildNodes(ctx context.Context, node *xmltree.Node) error {
	c := node.FirstChild
	for c != nil {
		prev := c.PrevSibling
		next := c.NextSibling
		directive := xmltree.IsElement(c) && c.NamespaceURI == host.TemplateNamespace

		if err := v.VisitNode(ctx, c); err != nil {
			return err
		}

		if directive && c.Parent != node {
			switch {
			case prev != nil && prev.Parent == node:
				c = prev.NextSibling
			case node.FirstChild != nil && node.FirstChild != next:
				c = node.FirstChild
			default:
				c = next
			}
			continue
		}
		if next != nil && next.Parent != node {
			return nil
		}
		c = next
	}
	return nil
}

// VisitAttributes resolves every binding attribute of node
func (v *Visitor) VisitAttributes(ctx context.Context, node *xmltree.Node) error {
	names := make([]string, 0, len(node.Attr))
	for _, a := range node.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		names = append(names, xmltree.AttrName(a))
	}
	for _, name := range names {
		if err := v.VisitAttribute(ctx, node, name); err != nil {
			return err
		}
	}
	return nil
}

// VisitAttribute replaces a binding attribute with its resolved text.
// Bindings that resolve to nothing or to an object are left untouched.
func (v *Visitor) VisitAttribute(ctx context.Context, node *xmltree.Node, name string) error {
	raw, ok := xmltree.LookupAttr(node, name)
	if !ok || !isBinding(raw) {
		return nil
	}

	value, err := v.Result(ctx, raw, node)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		v.log.Debug("Binding left unresolved", zap.String("attribute", name), zap.String("binding", raw), zap.Error(err))
		return nil
	}
	if value == nil || isObject(value) {
		return nil
	}
	xmltree.SetAttr(node, name, stringify(value))
	return nil
}

// Result resolves a raw binding. Text that is not a binding is returned
// as is.
func (v *Visitor) Result(ctx context.Context, text string, element *xmltree.Node) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !isBinding(text) {
		return text, nil
	}

	inner := strings.TrimSpace(text[1 : len(text)-1])
	if strings.HasPrefix(inner, "=") {
		return v.evaluate(ctx, strings.TrimSpace(inner[1:]))
	}
	return v.lookup(inner)
}

// Context resolves "name>" to a variable or model root, "name>path"
// relative to it, and a bare path relative to the current context path
func (v *Visitor) Context(ctx context.Context, path string) (*host.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, rel, qualified := strings.Cut(path, ">")
	if !qualified {
		cur := v.settings.CurrentContextPath
		if cur == nil || cur.Model == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
		}
		return cur.Model.CreateBindingContext(cur.Resolve(path))
	}

	if c, ok := v.vars[name]; ok && c != nil {
		if rel == "" {
			return c, nil
		}
		if c.Model == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
		}
		return c.Model.CreateBindingContext(c.Resolve(rel))
	}
	if m, ok := v.settings.Model(name); ok {
		return m.CreateBindingContext(host.JoinPath("/", rel))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
}

// InsertFragment replaces element with the named fragment and visits it
func (v *Visitor) InsertFragment(ctx context.Context, name string, element *xmltree.Node) error {
	text, err := v.fragments.Get(name)
	if err != nil {
		return err
	}
	nodes, err := xmltree.ParseFragment(text, xmltree.Namespaces(element))
	if err != nil {
		return fmt.Errorf("fragment %s: %w", name, err)
	}

	parent := element.Parent
	if err := xmltree.ReplaceWith(element, nodes...); err != nil {
		return err
	}
	for _, n := range nodes {
		if n.Parent != parent {
			continue
		}
		if err := v.VisitNode(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// lookup reads "name>path" from a variable or model, or a bare path from
// the current context path
func (v *Visitor) lookup(ref string) (interface{}, error) {
	name, rel, qualified := strings.Cut(ref, ">")
	if !qualified {
		if cur := v.settings.CurrentContextPath; cur != nil && cur.Model != nil {
			return cur.Model.Object(cur.Resolve(ref)), nil
		}
		if m, ok := v.settings.Model(""); ok {
			return m.Object(host.JoinPath("/", ref)), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
	}

	if c, ok := v.vars[name]; ok && c != nil {
		if c.Model == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
		}
		return c.Model.Object(c.Resolve(rel)), nil
	}
	if m, ok := v.settings.Model(name); ok {
		return m.Object(host.JoinPath("/", rel)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolved, ref)
}

// evaluate substitutes ${...} references with JSON literals and runs the
// expression
func (v *Visitor) evaluate(ctx context.Context, expr string) (interface{}, error) {
	var failed error
	src := exprRef.ReplaceAllStringFunc(expr, func(m string) string {
		ref := strings.TrimSpace(m[2 : len(m)-1])
		value, err := v.lookup(ref)
		if err != nil {
			if failed == nil {
				failed = err
			}
			return "undefined"
		}
		if value == nil {
			return "undefined"
		}
		if c, ok := value.(*host.Context); ok {
			value = c.Object()
		}
		lit, err := sonic.MarshalString(value)
		if err != nil {
			if failed == nil {
				failed = err
			}
			return "undefined"
		}
		return lit
	})
	if failed != nil {
		return nil, failed
	}
	return v.runtime.Eval(ctx, "("+src+")")
}

// directive expands a templating element in place
func (v *Visitor) directive(ctx context.Context, node *xmltree.Node) error {
	switch node.Data {
	case "if":
		return v.expandIf(ctx, node)
	default:
		v.log.Warn("Unknown templating directive", zap.String("element", xmltree.Name(node)))
		return nil
	}
}

// expandIf replaces a template:if with the content of the chosen branch.
// Branches are template:then / template:else children; without them all
// children form the then branch. The content is left for the caller to
// walk.
func (v *Visitor) expandIf(ctx context.Context, node *xmltree.Node) error {
	test := xmltree.AttrValue(node, "test")
	value, err := v.Result(ctx, test, node)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		v.log.Debug("template:if test not resolvable, taking else branch", zap.String("test", test), zap.Error(err))
		value = nil
	}

	var then, els *xmltree.Node
	for _, c := range xmltree.ElementChildren(node) {
		if c.NamespaceURI != host.TemplateNamespace {
			continue
		}
		switch c.Data {
		case "then":
			then = c
		case "else":
			els = c
		}
	}

	var branch []*xmltree.Node
	switch {
	case truthy(value) && then != nil:
		branch = xmltree.Children(then)
	case truthy(value) && els == nil:
		branch = xmltree.Children(node)
	case !truthy(value) && els != nil:
		branch = xmltree.Children(els)
	}
	return xmltree.ReplaceWith(node, branch...)
}

func isBinding(s string) bool {
	return len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' && !strings.HasPrefix(s, "{\"")
}

func isObject(v interface{}) bool {
	switch v.(type) {
	case *host.Context:
		return true
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Map || k == reflect.Slice || k == reflect.Struct || k == reflect.Ptr
}

// truthy follows expression truthiness
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	case float64:
		return t != 0
	case int64:
		return t != 0
	case int:
		return t != 0
	}
	return true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return fmt.Sprint(v)
}
