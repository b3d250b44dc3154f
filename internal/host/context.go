package host

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// ErrModelNotReady is returned when a binding context is requested from a
// model that has not been loaded yet
var ErrModelNotReady = errors.New("model not ready")

// Model is a data model that can hand out binding contexts
type Model interface {
	Name() string
	Object(path string) interface{}
	SetProperty(path string, value interface{}) error
	CreateBindingContext(path string) (*Context, error)
}

// Context is a data-context handle: a path inside a model
type Context struct {
	Model Model
	Path  string
}

// Object returns the value the context points at
func (c *Context) Object() interface{} {
	if c == nil || c.Model == nil {
		return nil
	}
	return c.Model.Object(c.Path)
}

// Resolve joins a relative path onto the context path
func (c *Context) Resolve(rel string) string {
	return JoinPath(c.Path, rel)
}

// ModelName returns the owning model's name, or ""
func (c *Context) ModelName() string {
	if c == nil || c.Model == nil {
		return ""
	}
	return c.Model.Name()
}

func (c *Context) String() string {
	return c.ModelName() + ">" + c.Path
}

// JoinPath resolves rel against base. Absolute rel wins.
func JoinPath(base, rel string) string {
	switch {
	case strings.HasPrefix(rel, "/"):
		return rel
	case rel == "":
		return base
	case base == "" || base == "/":
		return "/" + rel
	}
	return strings.TrimSuffix(base, "/") + "/" + rel
}

// ObjectModel is a Model over plain Go values (maps, slices, scalars)
type ObjectModel struct {
	name  string
	mu    sync.RWMutex
	data  map[string]interface{}
	ready bool
}

// NewObjectModel creates a ready model over data
func NewObjectModel(name string, data map[string]interface{}) *ObjectModel {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &ObjectModel{name: name, data: data, ready: true}
}

func (m *ObjectModel) Name() string {
	return m.name
}

// SetReady toggles whether binding contexts can be created
func (m *ObjectModel) SetReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

// Data returns the root object
func (m *ObjectModel) Data() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Object walks path segments through maps and slices
func (m *ObjectModel) Object(path string) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cur interface{} = m.data
	for _, seg := range segments(path) {
		next, ok := step(cur, seg)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// SetProperty writes value at path, creating intermediate maps
func (m *ObjectModel) SetProperty(path string, value interface{}) error {
	segs := segments(path)
	if len(segs) == 0 {
		return fmt.Errorf("model %s: cannot replace root", m.name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

// CreateBindingContext returns a context for an absolute path
func (m *ObjectModel) CreateBindingContext(path string) (*Context, error) {
	m.mu.RLock()
	ready := m.ready
	m.mu.RUnlock()

	if !ready {
		return nil, fmt.Errorf("model %s: %w", m.name, ErrModelNotReady)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Context{Model: m, Path: path}, nil
}

func segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func step(cur interface{}, seg string) (interface{}, bool) {
	switch v := cur.(type) {
	case map[string]interface{}:
		next, ok := v[seg]
		return next, ok
	case []interface{}:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	case *Context:
		return step(v.Object(), seg)
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}
