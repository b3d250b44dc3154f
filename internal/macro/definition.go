package macro

import (
	"fmt"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/tmpl"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// PropertyType is the declared type of a property
type PropertyType string

const (
	TypeString   PropertyType = "string"
	TypeBoolean  PropertyType = "boolean"
	TypeNumber   PropertyType = "number"
	TypeObject   PropertyType = "object"
	TypeArray    PropertyType = "array"
	TypeFunction PropertyType = "function"
	TypeContext  PropertyType = "context"
)

// Property declares a property or a metadata context
type Property struct {
	Name         string       `yaml:"name" toml:"name" json:"name"`
	Type         PropertyType `yaml:"type" toml:"type" json:"type"`
	DefaultValue interface{}  `yaml:"defaultValue" toml:"defaultValue" json:"defaultValue,omitempty"`
	Required     bool         `yaml:"required" toml:"required" json:"required,omitempty"`
	Public       bool         `yaml:"public" toml:"public" json:"public,omitempty"`

	// Computed marks a metadata context whose value is produced by the
	// macro itself and reconciled after expansion
	Computed bool `yaml:"computed" toml:"computed" json:"computed,omitempty"`
}

// Aggregation declares a named slot for child content
type Aggregation struct {
	Name    string `yaml:"name" toml:"name" json:"name"`
	Type    string `yaml:"type" toml:"type" json:"type,omitempty"`
	Slot    bool   `yaml:"slot" toml:"slot" json:"slot,omitempty"`
	SubList bool   `yaml:"subList" toml:"subList" json:"subList,omitempty"`
	Default bool   `yaml:"default" toml:"default" json:"default,omitempty"`

	// Process post-processes each keyed sub-list entry
	Process func(child *xmltree.Node, entry *ListEntry) *ListEntry `yaml:"-" toml:"-" json:"-"`
}

// Event declares an event; events are folded into the property table
type Event struct {
	Name   string `yaml:"name" toml:"name" json:"name"`
	Public bool   `yaml:"public" toml:"public" json:"public,omitempty"`
}

// Definition is the static description of a building block
type Definition struct {
	Name               string        `yaml:"name" toml:"name" json:"name"`
	Namespace          string        `yaml:"namespace" toml:"namespace" json:"namespace"`
	PublicNamespace    string        `yaml:"publicNamespace" toml:"publicNamespace" json:"publicNamespace,omitempty"`
	Fragment           string        `yaml:"fragment" toml:"fragment" json:"fragment,omitempty"`
	Properties         []Property    `yaml:"properties" toml:"properties" json:"properties,omitempty"`
	MetadataContexts   []Property    `yaml:"metadataContexts" toml:"metadataContexts" json:"metadataContexts,omitempty"`
	Aggregations       []Aggregation `yaml:"aggregations" toml:"aggregations" json:"aggregations,omitempty"`
	Events             []Event       `yaml:"events" toml:"events" json:"events,omitempty"`
	DefaultAggregation string        `yaml:"defaultAggregation" toml:"defaultAggregation" json:"defaultAggregation,omitempty"`

	// Open allows contexts that were not supplied to be inferred from the
	// ambient visitor
	Open bool `yaml:"open" toml:"open" json:"open,omitempty"`

	Expansion Expansion `yaml:"-" toml:"-" json:"-"`
}

// Version tags the expansion strategy
type Version int

const (
	VersionLegacy Version = 1
	VersionModern Version = 2
)

func (v Version) String() string {
	switch v {
	case VersionLegacy:
		return "construct-then-template"
	case VersionModern:
		return "instantiate-then-render"
	}
	return fmt.Sprintf("version(%d)", int(v))
}

// Expansion is the closed set of expansion strategies
type Expansion interface {
	Version() Version
}

// ConstructThenTemplate is the legacy strategy: Create turns resolved
// values into processed values, Template renders them. Both are optional;
// without Template the definition's fragment is inserted, or the node is
// removed.
type ConstructThenTemplate struct {
	Create   func(inv *Invocation) (Values, error)
	Template func(props Values, b *tmpl.Builder) (string, error)
}

func (*ConstructThenTemplate) Version() Version { return VersionLegacy }

// InstantiateThenRender is the modern strategy: New builds a typed block
// from the invocation, which then renders itself
type InstantiateThenRender struct {
	New func(inv *Invocation) (Block, error)
}

func (*InstantiateThenRender) Version() Version { return VersionModern }

// Block is an instantiated modern building block
type Block interface {
	Properties() Values
	Template(b *tmpl.Builder) (string, error)
}

// BaseBlock carries the processed values of a Block; embed it
type BaseBlock struct {
	Props Values
}

// Properties returns the processed values
func (b *BaseBlock) Properties() Values {
	return b.Props
}

// Invocation is what a macro's own logic receives
type Invocation struct {
	Definition   *Definition
	Metadata     *Metadata
	Node         *xmltree.Node
	Props        Values
	Contexts     *ContextSet
	Aggregations *Buckets
	Settings     *host.Settings
}

// Version returns the definition's expansion version
func (d *Definition) Version() Version {
	if d.Expansion == nil {
		return VersionLegacy
	}
	return d.Expansion.Version()
}

// Validate checks the definition is registrable
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("building block name is required")
	}
	if d.Namespace == "" {
		return fmt.Errorf("building block %s: namespace is required", d.Name)
	}
	if m, ok := d.Expansion.(*InstantiateThenRender); ok && m.New == nil {
		return fmt.Errorf("building block %s: modern expansion requires New", d.Name)
	}

	seen := make(map[string]bool)
	check := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("building block %s: %s without name", d.Name, kind)
		}
		if seen[name] {
			return fmt.Errorf("building block %s: duplicate %s %q", d.Name, kind, name)
		}
		seen[name] = true
		return nil
	}
	for _, p := range d.Properties {
		if err := check("property", p.Name); err != nil {
			return err
		}
	}
	for _, c := range d.MetadataContexts {
		if err := check("metadata context", c.Name); err != nil {
			return err
		}
	}
	for _, e := range d.Events {
		if err := check("event", e.Name); err != nil {
			return err
		}
	}
	return nil
}
