// Package tmpl builds tree-source text from literal fragments and
// interpolated values.
//
// Each interpolated value is encoded by kind: strings are attribute-escaped
// unless they already look like markup, expressions are compiled, context
// handles contribute their path, and structured values are parked in the
// indirect store so that only their key travels through the text.
//
// Example:
//
//	b := tmpl.NewBuilder(store)
//	text := b.Sprintf(`<m:Text text="%v" items="%v"/>`, title, items)
package tmpl

import (
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/diag"
	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/indirect"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// UndefinedPlaceholder stands in for a missing (nil) value. It is a binding
// no model can resolve, so omissions stay visible in the output.
const UndefinedPlaceholder = "{this>undefinedValue}"

// Expression is a bindable expression that compiles to binding text
type Expression interface {
	CompileExpression() string
}

// Option configures a Builder
type Option func(*Builder)

// WithDiagnostics enables diagnostic mode: every generated string and every
// interpolated markup value is parsed, and malformed text is replaced by a
// diagnostic fragment
func WithDiagnostics() Option {
	return func(b *Builder) { b.diagnostics = true }
}

// WithNamespaces sets the prefix bindings used when validating text
func WithNamespaces(ns map[string]string) Option {
	return func(b *Builder) { b.namespaces = ns }
}

// WithLogger sets the logger reporting replaced fragments
func WithLogger(log *zap.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// Builder assembles tree-source text
type Builder struct {
	store       *indirect.Store
	namespaces  map[string]string
	diagnostics bool
	keys        []string
	log         *zap.Logger
}

// NewBuilder creates a builder storing structured values in store
func NewBuilder(store *indirect.Store, opts ...Option) *Builder {
	b := &Builder{
		store: store,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Diagnostics reports whether the builder runs in diagnostic mode
func (b *Builder) Diagnostics() bool {
	return b.diagnostics
}

// Keys returns the indirect-store keys this builder created
func (b *Builder) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Lit groups literal fragments for XML
func Lit(parts ...string) []string {
	return parts
}

// XML concatenates literals[0], values[0], literals[1], ... strictly left to
// right and trims the result. Missing values encode as undefined, surplus
// values are ignored.
func (b *Builder) XML(literals []string, values ...interface{}) string {
	var out strings.Builder
	for i, lit := range literals {
		out.WriteString(lit)
		if i == len(literals)-1 {
			break
		}
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		out.WriteString(b.Encode(v))
	}

	text := strings.TrimSpace(out.String())
	if b.diagnostics {
		return b.validate(text)
	}
	return text
}

// Sprintf is XML with %v markers separating the literals
func (b *Builder) Sprintf(format string, values ...interface{}) string {
	return b.XML(strings.Split(format, "%v"), values...)
}

// Encode renders one interpolated value
func (b *Builder) Encode(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return UndefinedPlaceholder
	case []string:
		return b.markup(strings.TrimSpace(strings.Join(val, "\n")))
	case []func() string:
		parts := make([]string, len(val))
		for i, fn := range val {
			parts[i] = fn()
		}
		return b.markup(strings.Join(parts, "\n"))
	case Expression:
		return EscapeAttribute(val.CompileExpression())
	case func() string:
		return b.markup(val())
	case *host.Context:
		if val == nil {
			return UndefinedPlaceholder
		}
		return val.Path
	case string:
		if looksLikeMarkup(val) {
			return b.markup(val)
		}
		return EscapeAttribute(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr, reflect.Interface:
		if (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice) && rv.IsNil() {
			return UndefinedPlaceholder
		}
		key := b.store.Put(v)
		b.keys = append(b.keys, key)
		return key
	}
	return EscapeAttribute(stringify(rv))
}

// markup inlines a sub-fragment; in diagnostic mode it is validated on its
// own so the offending value is isolated
func (b *Builder) markup(text string) string {
	if !b.diagnostics || strings.TrimSpace(text) == "" {
		return text
	}
	return b.validate(text)
}

func (b *Builder) validate(text string) string {
	if _, err := xmltree.ParseFragment(text, b.namespaces); err != nil {
		b.log.Warn("Generated markup is malformed, substituting diagnostic fragment",
			zap.Error(err),
			zap.String("text", text))
		return diag.TemplateError(text, err)
	}
	return text
}

// EscapeAttribute escapes a value for use inside an attribute
func EscapeAttribute(s string) string {
	return xmltree.EscapeAttr(s)
}

func looksLikeMarkup(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<")
}

func stringify(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.String:
		return rv.String()
	}
	return rv.Type().String()
}
