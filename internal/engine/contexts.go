package engine

import (
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/indirect"
	"github.com/GriffinCanCode/blockforge/internal/logging"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// Context names with special resolution rules
const (
	ContextPath = "contextPath"
	MetaPath    = "metaPath"
	EntitySet   = "entitySet"
)

// resolveContexts resolves every declared metadata context. contextPath
// goes first because the others may be relative to it.
func (x *expansion) resolveContexts() {
	ordered := make([]macro.Property, 0, len(x.md.Contexts))
	for _, c := range x.md.Contexts {
		if c.Name == ContextPath {
			ordered = append([]macro.Property{c}, ordered...)
			continue
		}
		ordered = append(ordered, c)
	}

	for _, c := range ordered {
		ctx, ok := x.resolveContext(c.Name)
		if !ok {
			x.missing[c.Name] = true
			continue
		}
		x.registerContext(c.Name, ctx)
	}

	if len(x.missing) > 0 {
		x.log.Debug("Unresolved metadata contexts", zap.Strings("contexts", sortedKeys(x.missing)))
	}
}

// registerContext adds a resolved context. A name registers once; later
// registrations are dropped.
func (x *expansion) registerContext(name string, ctx *host.Context) {
	if !x.contexts.Register(name, ctx) {
		return
	}
	delete(x.missing, name)
	x.props[name] = ctx

	if name == EntitySet || name == ContextPath {
		if _, exists := x.settings.BindingContexts[name]; !exists {
			x.settings.BindingContexts[name] = ctx
		}
	}
	if name == ContextPath {
		x.settings.CurrentContextPath = ctx
	}
}

func (x *expansion) resolveContext(name string) (*host.Context, bool) {
	raw, present := xmltree.LookupAttr(x.node, name)
	if !present {
		return x.ambientContext(name)
	}

	if indirect.IsKey(raw) {
		value, ok := x.e.store.Take(raw)
		if !ok {
			x.log.Warn("Indirect store key not found", zap.String("context", name), zap.String("key", raw))
			return nil, false
		}
		return x.exposeValue(raw, value)
	}

	model, _ := x.settings.Model(host.MetaModel)
	var path string
	switch cur := x.settings.CurrentContextPath; {
	case (name == MetaPath || name == ContextPath) && cur != nil:
		path = cur.Resolve(raw)
		if cur.Model != nil {
			model = cur.Model
		}
	case strings.HasPrefix(raw, "/"):
		path = raw
	default:
		path = raw
		if es, ok := x.settings.BindingContexts[EntitySet]; ok && es != nil {
			path = es.Resolve(raw)
			if es.Model != nil {
				model = es.Model
			}
		}
	}
	return x.bind(name, model, path)
}

// ambientContext reuses a binding context of the same name, or asks the
// visitor in open mode
func (x *expansion) ambientContext(name string) (*host.Context, bool) {
	if ctx, ok := x.settings.BindingContexts[name]; ok && ctx != nil {
		return ctx, true
	}
	if !x.open() {
		return nil, false
	}
	ctx, err := x.v.Context(x.ctx, name+">")
	if err != nil || ctx == nil {
		return nil, false
	}
	return ctx, true
}

// bind materialises a path through the model. Failure marks the context
// missing; the model may simply not be loaded yet.
func (x *expansion) bind(name string, model host.Model, path string) (*host.Context, bool) {
	if model == nil {
		x.log.Debug("No model to resolve metadata context",
			zap.String("context", name),
			zap.String(logging.FieldCode, string(ErrCodeContextResolution)))
		return nil, false
	}
	ctx, err := model.CreateBindingContext(path)
	if err != nil || ctx == nil {
		x.log.Debug("Metadata context not resolvable",
			zap.String("context", name),
			zap.String("path", path),
			zap.String(logging.FieldCode, string(ErrCodeContextResolution)),
			zap.Error(err))
		return nil, false
	}
	return ctx, true
}

// converterModel returns the ephemeral model, creating it when the host
// did not supply one
func (x *expansion) converterModel() host.Model {
	if m, ok := x.settings.Model(host.ConverterContext); ok {
		return m
	}
	m := host.NewObjectModel(host.ConverterContext, nil)
	x.settings.Models[host.ConverterContext] = m
	return m
}

// exposeValue places value in the ephemeral model under key and binds a
// context to it
func (x *expansion) exposeValue(key string, value interface{}) (*host.Context, bool) {
	model := x.converterModel()
	path := "/" + key
	if err := model.SetProperty(path, value); err != nil {
		x.log.Debug("Failed to expose value", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return x.bind(key, model, path)
}

// reconcileContexts brings processed context values back into the context
// set: handles are kept, plain objects are exposed through the ephemeral
// model
func (x *expansion) reconcileContexts() {
	for _, c := range x.md.Contexts {
		value, ok := x.processed[c.Name]
		if !ok || value == nil {
			continue
		}

		switch v := value.(type) {
		case *host.Context:
			if x.md.IsComputed(c.Name) || !x.contexts.Has(c.Name) {
				x.contexts.Replace(c.Name, v)
				delete(x.missing, c.Name)
			}
		default:
			if !isPlainObject(v) {
				continue
			}
			key := x.e.store.Put(v)
			ctx, ok := x.exposeValue(key, v)
			x.e.store.Remove(key)
			if !ok {
				continue
			}
			x.contexts.Replace(c.Name, ctx)
			x.processed[c.Name] = ctx
			delete(x.missing, c.Name)
		}
	}
}

func isPlainObject(v interface{}) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Map || rv.Kind() == reflect.Struct
}
