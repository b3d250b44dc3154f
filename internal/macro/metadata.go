package macro

// Built-in aggregations every building block accepts
const (
	AggregationDependents = "dependents"
	AggregationCustomData = "customData"
)

// Metadata is the per-invocation view of a Definition
type Metadata struct {
	Properties         []Property
	Contexts           []Property
	Aggregations       []Aggregation
	DefaultAggregation string
	Open               bool
}

// ResolveMetadata derives a fresh Metadata from d. Context-typed properties
// are moved into the context table, events become function properties, and
// the built-in aggregations are added unless d declares them.
func ResolveMetadata(d *Definition) *Metadata {
	md := &Metadata{
		Properties: make([]Property, 0, len(d.Properties)+len(d.Events)),
		Contexts:   make([]Property, 0, len(d.MetadataContexts)),
		Open:       d.Open,
	}

	for _, p := range d.Properties {
		if p.Type == TypeContext {
			md.Contexts = append(md.Contexts, p)
			continue
		}
		md.Properties = append(md.Properties, p)
	}
	for _, c := range d.MetadataContexts {
		c.Type = TypeContext
		md.Contexts = append(md.Contexts, c)
	}
	for _, e := range d.Events {
		md.Properties = append(md.Properties, Property{
			Name:   e.Name,
			Type:   TypeFunction,
			Public: e.Public,
		})
	}

	md.Aggregations = append(md.Aggregations, d.Aggregations...)
	for _, builtin := range []string{AggregationDependents, AggregationCustomData} {
		if _, ok := md.Aggregation(builtin); !ok {
			md.Aggregations = append(md.Aggregations, Aggregation{Name: builtin})
		}
	}

	md.DefaultAggregation = d.DefaultAggregation
	if md.DefaultAggregation == "" {
		for _, a := range d.Aggregations {
			if a.Default {
				md.DefaultAggregation = a.Name
				break
			}
		}
	}
	return md
}

// Property looks up a plain property
func (m *Metadata) Property(name string) (*Property, bool) {
	for i := range m.Properties {
		if m.Properties[i].Name == name {
			return &m.Properties[i], true
		}
	}
	return nil, false
}

// Context looks up a metadata context
func (m *Metadata) Context(name string) (*Property, bool) {
	for i := range m.Contexts {
		if m.Contexts[i].Name == name {
			return &m.Contexts[i], true
		}
	}
	return nil, false
}

// Aggregation looks up an aggregation
func (m *Metadata) Aggregation(name string) (*Aggregation, bool) {
	for i := range m.Aggregations {
		if m.Aggregations[i].Name == name {
			return &m.Aggregations[i], true
		}
	}
	return nil, false
}

// IsComputed reports whether name is a computed metadata context
func (m *Metadata) IsComputed(name string) bool {
	c, ok := m.Context(name)
	return ok && c.Computed
}
