package macro

import (
	"github.com/google/uuid"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// Values maps property names to resolved values
type Values map[string]interface{}

// Clone returns a shallow copy
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// String returns a string value or ""
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Bool returns a boolean value or false
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Context returns a context handle value or nil
func (v Values) Context(name string) *host.Context {
	c, _ := v[name].(*host.Context)
	return c
}

// ContextSet holds the data contexts of one expansion in registration order
type ContextSet struct {
	names   []string
	entries map[string]*host.Context
}

// NewContextSet creates an empty set
func NewContextSet() *ContextSet {
	return &ContextSet{entries: make(map[string]*host.Context)}
}

// Register adds ctx under name. A second registration of the same name is
// a no-op and reports false.
func (s *ContextSet) Register(name string, ctx *host.Context) bool {
	if _, exists := s.entries[name]; exists {
		return false
	}
	s.names = append(s.names, name)
	s.entries[name] = ctx
	return true
}

// Replace sets ctx under name, overriding any earlier registration
func (s *ContextSet) Replace(name string, ctx *host.Context) {
	if _, exists := s.entries[name]; !exists {
		s.names = append(s.names, name)
	}
	s.entries[name] = ctx
}

// Get returns the context registered under name
func (s *ContextSet) Get(name string) (*host.Context, bool) {
	ctx, ok := s.entries[name]
	return ctx, ok
}

// Has reports whether name is registered
func (s *ContextSet) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Len returns the number of registered contexts
func (s *ContextSet) Len() int {
	return len(s.names)
}

// Names returns registered names in registration order
func (s *ContextSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Vars returns the set as visitor variables
func (s *ContextSet) Vars() map[string]*host.Context {
	out := make(map[string]*host.Context, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Synthetic wrapper elements live in this namespace
const (
	WrapperNamespace = "urn:blockforge:aggregation:1"
	WrapperPrefix    = "bb"
)

// Bucket collects the child content of one aggregation for projection
type Bucket struct {
	Name string

	// Wrapper is the synthetic element holding the collected content
	Wrapper *xmltree.Node

	// Appendable buckets that find no slot may be appended to the fragment
	Appendable bool
}

// NewBucket creates an empty bucket
func NewBucket(name string, appendable bool) *Bucket {
	w := xmltree.NewElement(WrapperPrefix, "aggregation", WrapperNamespace)
	xmltree.SetAttr(w, "xmlns:"+WrapperPrefix, WrapperNamespace)
	xmltree.SetAttr(w, "name", name)
	xmltree.SetAttr(w, "id", uuid.NewString())
	return &Bucket{Name: name, Wrapper: w, Appendable: appendable}
}

// AddElement moves el itself into the bucket
func (b *Bucket) AddElement(el *xmltree.Node) {
	xmltree.Detach(el)
	xmltree.AppendChild(b.Wrapper, el)
}

// AddContainer moves the children of an aggregation element into the
// bucket; several same-named containers merge
func (b *Bucket) AddContainer(el *xmltree.Node) {
	xmltree.Detach(el)
	xmltree.AppendChild(b.Wrapper, xmltree.Children(el)...)
}

// Content returns the collected nodes
func (b *Bucket) Content() []*xmltree.Node {
	return xmltree.Children(b.Wrapper)
}

// Elements returns the collected element nodes
func (b *Bucket) Elements() []*xmltree.Node {
	return xmltree.ElementChildren(b.Wrapper)
}

// Empty reports whether the bucket holds no element
func (b *Bucket) Empty() bool {
	return len(b.Elements()) == 0
}

// Buckets is an ordered collection of buckets
type Buckets struct {
	order []string
	m     map[string]*Bucket
}

// NewBuckets creates an empty collection
func NewBuckets() *Buckets {
	return &Buckets{m: make(map[string]*Bucket)}
}

// Get returns the bucket named name
func (bs *Buckets) Get(name string) (*Bucket, bool) {
	b, ok := bs.m[name]
	return b, ok
}

// Ensure returns the bucket named name, creating it if needed
func (bs *Buckets) Ensure(name string, appendable bool) *Bucket {
	if b, ok := bs.m[name]; ok {
		return b
	}
	b := NewBucket(name, appendable)
	bs.order = append(bs.order, name)
	bs.m[name] = b
	return b
}

// All returns buckets in creation order
func (bs *Buckets) All() []*Bucket {
	out := make([]*Bucket, 0, len(bs.order))
	for _, name := range bs.order {
		out = append(out, bs.m[name])
	}
	return out
}

// Len returns the number of buckets
func (bs *Buckets) Len() int {
	return len(bs.order)
}

// InlineKeyPrefix namespaces keys of entries declared inline in markup
const InlineKeyPrefix = "InlineXML_"

// Position is a placement hint of a list entry
type Position struct {
	Placement string `json:"placement,omitempty"`
	Anchor    string `json:"anchor,omitempty"`
}

// ListEntry is one keyed entry of a sub-list aggregation
type ListEntry struct {
	Key        string            `json:"key"`
	Type       string            `json:"type"`
	Position   Position          `json:"position"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ListEntries is an ordered keyed list
type ListEntries []*ListEntry

// Get returns the entry with key
func (l ListEntries) Get(key string) *ListEntry {
	for _, e := range l {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// Keys returns entry keys in order
func (l ListEntries) Keys() []string {
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = e.Key
	}
	return out
}
