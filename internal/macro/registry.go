package macro

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry holds registered definitions keyed by namespace and name
type Registry struct {
	defs  sync.Map
	count int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

func registryKey(space, name string) string {
	return space + "#" + name
}

// Register installs d under its namespace and, when set, its public
// namespace. Registering the same name again replaces the definition.
func (r *Registry) Register(d *Definition) error {
	if d == nil {
		return fmt.Errorf("definition is required")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.store(registryKey(d.Namespace, d.Name), d)
	if d.PublicNamespace != "" && d.PublicNamespace != d.Namespace {
		r.store(registryKey(d.PublicNamespace, d.Name), d)
	}
	return nil
}

func (r *Registry) store(key string, d *Definition) {
	if _, existed := r.defs.Swap(key, d); !existed {
		atomic.AddInt64(&r.count, 1)
	}
}

// Lookup finds the definition for an element
func (r *Registry) Lookup(space, name string) (*Definition, bool) {
	v, ok := r.defs.Load(registryKey(space, name))
	if !ok {
		return nil, false
	}
	return v.(*Definition), true
}

// Len returns the number of registered keys, aliases included
func (r *Registry) Len() int {
	return int(atomic.LoadInt64(&r.count))
}

// Definitions returns the distinct registered definitions sorted by
// namespace and name
func (r *Registry) Definitions() []*Definition {
	seen := make(map[*Definition]bool)
	var out []*Definition
	r.defs.Range(func(_, value interface{}) bool {
		d := value.(*Definition)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}
