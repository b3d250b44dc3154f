package macro

import (
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/indirect"
	"github.com/GriffinCanCode/blockforge/internal/tmpl"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

func sampleDefinition() *Definition {
	return &Definition{
		Name:            "Field",
		Namespace:       "urn:test:blocks",
		PublicNamespace: "urn:test:public",
		Properties: []Property{
			{Name: "label", Type: TypeString},
			{Name: "entitySet", Type: TypeContext},
		},
		MetadataContexts: []Property{{Name: "contextPath"}},
		Aggregations: []Aggregation{
			{Name: "items", Slot: true, Default: true},
		},
		Events: []Event{{Name: "change", Public: true}},
	}
}

func TestResolveMetadata(t *testing.T) {
	md := ResolveMetadata(sampleDefinition())

	_, ok := md.Property("entitySet")
	assert.False(t, ok, "context-typed properties move to the context table")

	ctx, ok := md.Context("entitySet")
	require.True(t, ok)
	assert.Equal(t, TypeContext, ctx.Type)

	ctx, ok = md.Context("contextPath")
	require.True(t, ok)
	assert.Equal(t, TypeContext, ctx.Type)

	ev, ok := md.Property("change")
	require.True(t, ok)
	assert.Equal(t, TypeFunction, ev.Type)
	assert.True(t, ev.Public)

	_, ok = md.Aggregation(AggregationDependents)
	assert.True(t, ok)
	_, ok = md.Aggregation(AggregationCustomData)
	assert.True(t, ok)

	assert.Equal(t, "items", md.DefaultAggregation)
}

func TestResolveMetadataIsFreshPerCall(t *testing.T) {
	d := sampleDefinition()
	a := ResolveMetadata(d)
	a.Properties[0].DefaultValue = "mutated"

	b := ResolveMetadata(d)
	assert.Nil(t, b.Properties[0].DefaultValue)
	assert.Nil(t, d.Properties[0].DefaultValue)
}

func TestContextSetRegisterIsIdempotent(t *testing.T) {
	model := host.NewObjectModel(host.MetaModel, nil)
	names := []string{"contextPath", "metaPath", "entitySet"}
	paths := []string{"/A", "/B", ""}

	for _, name := range names {
		for _, first := range paths {
			for _, second := range paths {
				t.Run(fmt.Sprintf("%s %q then %q", name, first, second), func(t *testing.T) {
					s := NewContextSet()
					assert.True(t, s.Register(name, &host.Context{Model: model, Path: first}))
					assert.False(t, s.Register(name, &host.Context{Model: model, Path: second}))

					assert.Equal(t, 1, s.Len())
					got, ok := s.Get(name)
					require.True(t, ok)
					assert.Equal(t, first, got.Path)
				})
			}
		}
	}
}

func TestContextSetReplace(t *testing.T) {
	s := NewContextSet()
	s.Register("a", &host.Context{Path: "/1"})
	s.Replace("a", &host.Context{Path: "/2"})
	s.Replace("b", &host.Context{Path: "/3"})

	assert.Equal(t, []string{"a", "b"}, s.Names())
	got, _ := s.Get("a")
	assert.Equal(t, "/2", got.Path)
	assert.Len(t, s.Vars(), 2)
}

func TestBuckets(t *testing.T) {
	root, err := xmltree.ParseString(`<r xmlns:m="urn:m"><m:Actions><m:A/><m:B/></m:Actions><m:Actions><m:C/></m:Actions><m:D/></r>`)
	require.NoError(t, err)
	top := xmltree.FirstElementChild(root)
	children := xmltree.ElementChildren(top)

	bs := NewBuckets()
	actions := bs.Ensure("actions", false)
	actions.AddContainer(children[0])
	bs.Ensure("actions", true).AddContainer(children[1])
	bs.Ensure("items", true).AddElement(children[2])

	assert.Equal(t, 2, bs.Len())
	assert.False(t, actions.Appendable, "first creation wins")

	var names []string
	for _, el := range actions.Elements() {
		names = append(names, el.Data)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)

	items, ok := bs.Get("items")
	require.True(t, ok)
	require.Len(t, items.Elements(), 1)
	assert.Equal(t, "D", items.Elements()[0].Data)
	assert.Empty(t, xmltree.ElementChildren(top), "collected children leave the source node")
	assert.NotEmpty(t, xmltree.AttrValue(items.Wrapper, "id"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	d := sampleDefinition()
	require.NoError(t, r.Register(d))

	got, ok := r.Lookup("urn:test:blocks", "Field")
	require.True(t, ok)
	assert.Same(t, d, got)

	got, ok = r.Lookup("urn:test:public", "Field")
	require.True(t, ok)
	assert.Same(t, d, got)

	_, ok = r.Lookup("urn:test:blocks", "Other")
	assert.False(t, ok)

	require.NoError(t, r.Register(d))
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.Definitions(), 1)
}

func TestRegistryRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Definition{Name: "X"}))
	assert.Error(t, r.Register(&Definition{
		Name:      "X",
		Namespace: "urn:x",
		Expansion: &InstantiateThenRender{},
	}))
	assert.Error(t, r.Register(&Definition{
		Name:       "X",
		Namespace:  "urn:x",
		Properties: []Property{{Name: "a"}, {Name: "a"}},
	}))
}

func TestVersion(t *testing.T) {
	assert.Equal(t, VersionLegacy, (&Definition{}).Version())
	assert.Equal(t, VersionLegacy, (&Definition{Expansion: &ConstructThenTemplate{}}).Version())
	assert.Equal(t, VersionModern, (&Definition{Expansion: &InstantiateThenRender{}}).Version())
}

const yamlDefinitions = `
namespace: urn:test:blocks
buildingBlocks:
  - name: Title
    properties:
      - name: text
        type: string
        defaultValue: Untitled
      - name: level
        type: number
        defaultValue: 2
    template: |
      <m:Title xmlns:m="urn:test:ui" text="%{text}" level="%{level}"/>
  - name: Shell
    fragment: fragments.Shell
`

const tomlDefinitions = `
namespace = "urn:test:blocks"
publicNamespace = "urn:test:public"

[[buildingBlocks]]
name = "Badge"
defaultAggregation = "content"

  [[buildingBlocks.properties]]
  name = "state"
  type = "string"
  required = true

  [[buildingBlocks.aggregations]]
  name = "content"
  slot = true
`

func TestParseDefinitionsYAML(t *testing.T) {
	defs, err := ParseDefinitions([]byte(yamlDefinitions), ".yaml")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	title := defs[0]
	assert.Equal(t, "Title", title.Name)
	assert.Equal(t, "urn:test:blocks", title.Namespace)
	require.Len(t, title.Properties, 2)
	assert.Equal(t, "Untitled", title.Properties[0].DefaultValue)
	assert.Equal(t, float64(2), title.Properties[1].DefaultValue)

	exp, ok := title.Expansion.(*ConstructThenTemplate)
	require.True(t, ok)
	out, err := exp.Template(Values{"text": "A & B", "level": float64(3)}, tmpl.NewBuilder(indirect.NewStore()))
	require.NoError(t, err)
	assert.Equal(t, `<m:Title xmlns:m="urn:test:ui" text="A &amp; B" level="3"/>`, out)

	shell := defs[1]
	assert.Equal(t, "fragments.Shell", shell.Fragment)
	assert.Nil(t, shell.Expansion)
}

func TestParseDefinitionsTOML(t *testing.T) {
	defs, err := ParseDefinitions([]byte(tomlDefinitions), ".toml")
	require.NoError(t, err)
	require.Len(t, defs, 1)

	badge := defs[0]
	assert.Equal(t, "Badge", badge.Name)
	assert.Equal(t, "urn:test:public", badge.PublicNamespace)
	assert.Equal(t, "content", badge.DefaultAggregation)
	require.Len(t, badge.Properties, 1)
	assert.True(t, badge.Properties[0].Required)
	require.Len(t, badge.Aggregations, 1)
	assert.True(t, badge.Aggregations[0].Slot)
}

func TestLoaderLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"core/title.yaml":    {Data: []byte(yamlDefinitions)},
		"extra/badge.toml":   {Data: []byte(tomlDefinitions)},
		"extra/broken.yml":   {Data: []byte("buildingBlocks: [ {name: ")},
		"extra/readme.txt":   {Data: []byte("ignored")},
		"extra/unnamed.yaml": {Data: []byte("buildingBlocks:\n  - name: Orphan\n")},
	}

	r := NewRegistry()
	loaded, failed, err := NewLoader(r, nil).LoadFS(fsys, DefaultPattern)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)
	assert.Equal(t, 2, failed, "broken syntax and missing namespace")

	_, ok := r.Lookup("urn:test:public", "Badge")
	assert.True(t, ok)
	_, ok = r.Lookup("urn:test:blocks", "Shell")
	assert.True(t, ok)
}

func TestLoaderMissingDirectory(t *testing.T) {
	loaded, failed, err := NewLoader(NewRegistry(), nil).LoadDir(t.TempDir()+"/absent", "")
	require.NoError(t, err)
	assert.Zero(t, loaded)
	assert.Zero(t, failed)
}

func TestListEntries(t *testing.T) {
	l := ListEntries{
		{Key: InlineKeyPrefix + "a", Position: Position{Placement: "After", Anchor: "x"}},
		{Key: InlineKeyPrefix + "b"},
	}
	assert.Equal(t, []string{"InlineXML_a", "InlineXML_b"}, l.Keys())
	assert.Equal(t, "After", l.Get("InlineXML_a").Position.Placement)
	assert.Nil(t, l.Get("missing"))
}
