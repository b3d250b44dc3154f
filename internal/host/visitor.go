// Package host defines what the expansion engine consumes from the view
// pipeline that walks the wider tree.
//
// Components:
//   - Visitor: resolves bindings and recursively visits nodes; every call may
//     block while the host loads models or fragments
//   - Settings: the ambient bag shared along one tree walk
//   - Model / Context: data models and data-context handles
//   - HandlerLookup: how the host tree walk dispatches macro tags
//
// A reference in-memory implementation lives in host/memory.
package host

import (
	"context"

	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// Well-known model names
const (
	MetaModel        = "metaModel"
	ConverterContext = "converterContext"
	ThisModel        = "this"
)

// TemplateNamespace holds templating directives (template:if, ...) that the
// host expands in place
const TemplateNamespace = "urn:blockforge:template:1"

// Settings is the ambient settings bag of a tree walk
type Settings struct {
	CurrentContextPath *Context
	Models             map[string]Model
	BindingContexts    map[string]*Context
	Public             bool
	Scratch            map[string]interface{}

	// CurrentMacro names the macro being expanded, for tracing
	CurrentMacro string
}

// NewSettings creates an empty settings bag
func NewSettings() *Settings {
	return &Settings{
		Models:          make(map[string]Model),
		BindingContexts: make(map[string]*Context),
		Scratch:         make(map[string]interface{}),
	}
}

// Model returns a model by name
func (s *Settings) Model(name string) (Model, bool) {
	m, ok := s.Models[name]
	return m, ok && m != nil
}

// Visitor is the host collaborator that resolves bindings and walks nodes
type Visitor interface {
	Settings() *Settings

	VisitNode(ctx context.Context, node *xmltree.Node) error
	VisitChildNodes(ctx context.Context, node *xmltree.Node) error
	VisitAttribute(ctx context.Context, node *xmltree.Node, name string) error
	VisitAttributes(ctx context.Context, node *xmltree.Node) error

	// InsertFragment loads the named fragment and splices it in place of
	// element
	InsertFragment(ctx context.Context, name string, element *xmltree.Node) error

	// Result resolves a raw binding string
	Result(ctx context.Context, text string, element *xmltree.Node) (interface{}, error)

	// Context resolves "model>path" or a named variable ("name>")
	Context(ctx context.Context, path string) (*Context, error)

	// With returns a visitor scoped to additional (or, with replace, only
	// these) named contexts
	With(vars map[string]*Context, replace bool) Visitor
}

// NodeHandler expands one node on behalf of the host tree walk
type NodeHandler func(ctx context.Context, node *xmltree.Node, v Visitor) error

// HandlerLookup resolves a handler for an element by namespace and name
type HandlerLookup interface {
	Handler(space, local string) (NodeHandler, bool)
}
