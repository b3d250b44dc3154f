package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/blockforge/internal/diag"
	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/host/memory"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/config"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blockforge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/tmpl"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

const testNS = "urn:test"

type fixture struct {
	engine   *Engine
	metrics  *monitoring.Metrics
	settings *host.Settings
	visitor  *memory.Visitor
	library  *memory.Library
}

func newFixture(t *testing.T, cfg config.EngineConfig, opts ...memory.Option) *fixture {
	t.Helper()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	eng := New(WithConfig(cfg), WithMetrics(metrics))

	settings := host.NewSettings()
	data, err := memory.LoadModel("data", []byte(`{"title":"Hello","flag":true}`))
	require.NoError(t, err)
	settings.Models["data"] = data

	lib := memory.NewLibrary()
	opts = append([]memory.Option{memory.WithHandlers(eng), memory.WithFragments(lib)}, opts...)
	return &fixture{
		engine:   eng,
		metrics:  metrics,
		settings: settings,
		visitor:  memory.New(settings, opts...),
		library:  lib,
	}
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, config.Default().Engine)
}

// expand parses src, expands the first m:* element found with d and
// returns the root element and the result
func (f *fixture) expand(t *testing.T, d *macro.Definition, src string) (*xmltree.Node, *Result) {
	t.Helper()
	return f.expandContext(context.Background(), t, d, src)
}

func (f *fixture) expandContext(ctx context.Context, t *testing.T, d *macro.Definition, src string) (*xmltree.Node, *Result) {
	t.Helper()
	doc, err := xmltree.ParseString(`<root xmlns:m="` + testNS + `">` + src + `</root>`)
	require.NoError(t, err)
	root := xmltree.FirstElementChild(doc)

	var node *xmltree.Node
	for _, c := range xmltree.ElementChildren(root) {
		if c.Data == d.Name {
			node = c
			break
		}
	}
	require.NotNil(t, node, "no <%s> in source", d.Name)
	return root, f.engine.Expand(ctx, d, node, f.visitor)
}

func names(nodes []*xmltree.Node) []string {
	var out []string
	for _, n := range nodes {
		if xmltree.IsElement(n) {
			out = append(out, n.Data)
		}
	}
	return out
}

func legacy(name string, tpl func(macro.Values, *tmpl.Builder) (string, error)) *macro.Definition {
	return &macro.Definition{
		Name:      name,
		Namespace: testNS,
		Expansion: &macro.ConstructThenTemplate{Template: tpl},
	}
}

type testBlock struct {
	macro.BaseBlock
	render func(p macro.Values, b *tmpl.Builder) (string, error)
}

func (tb *testBlock) Template(b *tmpl.Builder) (string, error) {
	return tb.render(tb.Props, b)
}

func modern(name string, tpl func(macro.Values, *tmpl.Builder) (string, error)) *macro.Definition {
	return &macro.Definition{
		Name:      name,
		Namespace: testNS,
		Expansion: &macro.InstantiateThenRender{
			New: func(inv *macro.Invocation) (macro.Block, error) {
				return &testBlock{BaseBlock: macro.BaseBlock{Props: inv.Props}, render: tpl}, nil
			},
		},
	}
}

func TestDefaultValueRenders(t *testing.T) {
	f := defaultFixture(t)
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return b.Sprintf(`<Text text="%v" bound="%v"/>`, p["title"], tmpl.BindModel("this", "title")), nil
	})
	d.Properties = []macro.Property{{Name: "title", Type: macro.TypeString, DefaultValue: "x"}}

	root, res := f.expand(t, d, `<m:Card/>`)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, `<Text text="x" bound="x"/>`, xmltree.Serialize(xmltree.Children(root)...))
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, "Text", res.Nodes[0].Data)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Expansions)
}

func TestRegisterAndDispatch(t *testing.T) {
	f := defaultFixture(t)
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return b.Sprintf(`<Text text="%v"/>`, p["title"]), nil
	})
	d.PublicNamespace = "urn:public"
	d.Properties = []macro.Property{{Name: "title", Public: true}}

	require.NoError(t, f.engine.Register(d))
	require.NoError(t, f.engine.Register(d))
	assert.Equal(t, 2, f.engine.Registry().Len())

	doc, err := xmltree.ParseString(`<root xmlns:m="urn:test" xmlns:p="urn:public"><m:Card title="a"/><p:Card title="{data>title}"/></root>`)
	require.NoError(t, err)
	require.NoError(t, f.visitor.VisitNode(context.Background(), doc))

	assert.Equal(t, `<Text text="a"/><Text text="Hello"/>`, xmltree.Serialize(xmltree.Children(xmltree.FirstElementChild(doc))...))

	_, ok := f.engine.Handler("urn:other", "Card")
	assert.False(t, ok)
}

func TestDefaultsAreNotShared(t *testing.T) {
	f := defaultFixture(t)
	defaults := map[string]interface{}{"a": 1}
	d := &macro.Definition{
		Name:      "Card",
		Namespace: testNS,
		Properties: []macro.Property{
			{Name: "opts", Type: macro.TypeObject, DefaultValue: defaults},
		},
		Expansion: &macro.ConstructThenTemplate{
			Create: func(inv *macro.Invocation) (macro.Values, error) {
				opts := inv.Props["opts"].(map[string]interface{})
				assert.Equal(t, 1, opts["a"])
				opts["a"] = 2
				return inv.Props, nil
			},
		},
	}

	_, first := f.expand(t, d, `<m:Card/>`)
	_, second := f.expand(t, d, `<m:Card/>`)

	assert.Equal(t, StateDone, first.State)
	assert.Equal(t, StateDone, second.State)
	assert.Equal(t, 1, defaults["a"])
}

func TestMissingRequiredPropertyFails(t *testing.T) {
	f := defaultFixture(t)
	rendered := false
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		rendered = true
		return "<Text/>", nil
	})
	d.Properties = []macro.Property{
		{Name: "id", Required: true},
		{Name: "title", DefaultValue: "x"},
	}

	root, res := f.expand(t, d, `<Before/><m:Card title="t"/><After/>`)

	require.True(t, res.Failed())
	assert.False(t, rendered)
	assert.ErrorIs(t, res.Err, ErrMissingRequiredProperty)
	assert.Equal(t, []string{"Before", "Error", "After"}, names(xmltree.Children(root)))

	el := xmltree.ChildAt(root, 1)
	assert.True(t, diag.IsDiagnostic(el))
	assert.Equal(t, "Card", xmltree.AttrValue(el, "macro"))
	assert.Equal(t, "BB100", xmltree.AttrValue(el, "code"))
	assert.Equal(t, int64(1), f.metrics.Snapshot().Failures)
}

func TestReturnedSentinelIsNotShared(t *testing.T) {
	f := defaultFixture(t)
	failing := func(name string) *macro.Definition {
		d := legacy(name, func(p macro.Values, b *tmpl.Builder) (string, error) {
			return "<Text/>", nil
		})
		d.Expansion.(*macro.ConstructThenTemplate).Create = func(inv *macro.Invocation) (macro.Values, error) {
			return nil, ErrMissingRequiredProperty
		}
		return d
	}

	_, first := f.expand(t, failing("First"), `<m:First/>`)
	_, second := f.expand(t, failing("Second"), `<m:Second/>`)

	require.True(t, first.Failed())
	require.True(t, second.Failed())
	assert.Empty(t, ErrMissingRequiredProperty.Macro)
	assert.NotSame(t, ErrMissingRequiredProperty, first.Err)
	assert.NotSame(t, first.Err, second.Err)
	assert.Equal(t, "First", first.Err.Macro)
	assert.Equal(t, "Second", second.Err.Macro)
	assert.Contains(t, second.Err.Error(), "in Second")
	assert.ErrorIs(t, second.Err, ErrMissingRequiredProperty)
	assert.NotEmpty(t, second.Err.Stack())
}

func TestUnexpectedErrorDiagnostic(t *testing.T) {
	f := defaultFixture(t)
	d := &macro.Definition{
		Name:       "Card",
		Namespace:  testNS,
		Properties: []macro.Property{{Name: "title"}},
		Expansion: &macro.ConstructThenTemplate{
			Create: func(inv *macro.Invocation) (macro.Values, error) {
				return nil, errors.New("cannot build card")
			},
		},
	}

	root, res := f.expand(t, d, `<m:Card title="x"/>`)

	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, ErrUnexpected)

	el := xmltree.FirstElementChild(root)
	require.True(t, diag.IsDiagnostic(el))
	assert.Equal(t, "Card", xmltree.AttrValue(el, "macro"))
	assert.Contains(t, xmltree.AttrValue(el, "message"), "cannot build card")

	source, err := diag.Decode(xmltree.AttrValue(el, "source"))
	require.NoError(t, err)
	assert.Equal(t, `<m:Card title="x"/>`, source)
	assert.Equal(t, source, xmltree.FirstElementChild(el).InnerText())

	trace, err := diag.Decode(xmltree.AttrValue(el, "trace"))
	require.NoError(t, err)
	assert.Contains(t, trace, `"title":"x"`)
}

func TestPanicIsRecovered(t *testing.T) {
	f := defaultFixture(t)
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		panic("template exploded")
	})

	root, res := f.expand(t, d, `<m:Card/>`)

	require.True(t, res.Failed())
	assert.Equal(t, ErrCodeUnexpected, res.Err.Code)
	el := xmltree.FirstElementChild(root)
	assert.True(t, diag.IsDiagnostic(el))
	assert.NotEmpty(t, xmltree.AttrValue(el, "stack"))
}

func TestFailureAfterSpliceReplacesSplicedRange(t *testing.T) {
	f := defaultFixture(t)
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return "<X/><Y/>", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root, res := f.expandContext(ctx, t, d, `<A/><m:Card/><B/>`)

	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, ErrUnexpected)
	assert.Equal(t, []string{"A", "Error", "B"}, names(xmltree.Children(root)))
	assert.Equal(t, StateFailed, res.State)
}

func TestObjectPassesThroughStore(t *testing.T) {
	f := defaultFixture(t)
	inner := legacy("Inner", func(p macro.Values, b *tmpl.Builder) (string, error) {
		data := p["data"].(map[string]interface{})
		return b.Sprintf(`<Text text="%v"/>`, data["name"]), nil
	})
	inner.Properties = []macro.Property{{Name: "data", Type: macro.TypeObject}}
	require.NoError(t, f.engine.Register(inner))

	outer := legacy("Outer", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return b.Sprintf(`<m:Inner data="%v"/>`, map[string]interface{}{"name": "passed"}), nil
	})

	root, res := f.expand(t, outer, `<m:Outer/>`)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, `<Text text="passed"/>`, xmltree.Serialize(xmltree.Children(root)...))
	assert.Zero(t, res.Leaked)
	assert.Zero(t, f.engine.Store().Len())
}

func TestUnconsumedKeysAreReclaimed(t *testing.T) {
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return b.Sprintf(`<Text data="%v"/>`, []interface{}{"a", "b"}), nil
	})

	f := defaultFixture(t)
	_, res := f.expand(t, d, `<m:Card/>`)
	assert.Equal(t, 1, res.Leaked)
	assert.Zero(t, f.engine.Store().Len())
	assert.Equal(t, int64(1), f.metrics.Snapshot().LeakedKeys)

	cfg := config.Default().Engine
	cfg.ReclaimLeaks = false
	f = newFixture(t, cfg)
	_, res = f.expand(t, d, `<m:Card/>`)
	assert.Zero(t, res.Leaked)
	assert.Equal(t, 1, f.engine.Store().Len())
}

func slotDefinition() *macro.Definition {
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return `<Box><slot name="A"/><slot name="B"/></Box>`, nil
	})
	d.Aggregations = []macro.Aggregation{
		{Name: "A", Slot: true},
		{Name: "B", Slot: true},
		{Name: "C"},
	}
	return d
}

func TestSlotProjection(t *testing.T) {
	src := `<m:Card><m:A><X/></m:A><m:C><Y/></m:C></m:Card>`

	f := defaultFixture(t)
	root, res := f.expand(t, slotDefinition(), src)
	require.Equal(t, StateDone, res.State)
	box := xmltree.FirstElementChild(root)
	assert.Equal(t, "Box", box.Data)
	assert.Equal(t, []string{"X", "Y"}, names(xmltree.Children(box)))

	cfg := config.Default().Engine
	cfg.ProcessCustomData = false
	f = newFixture(t, cfg)
	root, res = f.expand(t, slotDefinition(), src)
	require.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"X"}, names(xmltree.Children(xmltree.FirstElementChild(root))))
}

func TestDefaultAggregationAndVisit(t *testing.T) {
	for _, d := range []*macro.Definition{
		legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
			return `<Box><slot name="content"/></Box>`, nil
		}),
		modern("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
			return `<Box><slot name="content"/></Box>`, nil
		}),
	} {
		t.Run(d.Version().String(), func(t *testing.T) {
			d.Aggregations = []macro.Aggregation{{Name: "content", Slot: true, Default: true}}
			f := defaultFixture(t)

			root, res := f.expand(t, d, `<m:Card><note t="{data>title}"/><other/></m:Card>`)

			require.Equal(t, StateDone, res.State)
			box := xmltree.FirstElementChild(root)
			assert.Equal(t, []string{"note", "other"}, names(xmltree.Children(box)))
			assert.Equal(t, "Hello", xmltree.AttrValue(xmltree.FirstElementChild(box), "t"))
		})
	}
}

func TestMalformedOutputIsRenderedWithDiagnostics(t *testing.T) {
	d := legacy("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return b.Sprintf(`<Text text="%v">`, "x"), nil
	})

	f := defaultFixture(t)
	root, res := f.expand(t, d, `<m:Card/>`)

	assert.Equal(t, StateDone, res.State)
	el := xmltree.FirstElementChild(root)
	assert.True(t, diag.IsDiagnostic(el))
	assert.Equal(t, "TemplateError", el.Data)
	_, err := xmltree.ParseString(xmltree.Serialize(root))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Retries)

	cfg := config.Default().Engine
	cfg.DiagnosticRetry = false
	f = newFixture(t, cfg)
	root, res = f.expand(t, d, `<m:Card/>`)
	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, ErrMalformedFragment)
	assert.Equal(t, "BB300", xmltree.AttrValue(xmltree.FirstElementChild(root), "code"))
}

func TestContextPathResolution(t *testing.T) {
	f := defaultFixture(t)
	meta := host.NewObjectModel(host.MetaModel, map[string]interface{}{
		"Root": map[string]interface{}{"sub": map[string]interface{}{"leaf": "v"}},
	})
	f.settings.Models[host.MetaModel] = meta
	root, err := meta.CreateBindingContext("/Root")
	require.NoError(t, err)
	f.settings.CurrentContextPath = root

	d := &macro.Definition{
		Name:      "Card",
		Namespace: testNS,
		MetadataContexts: []macro.Property{
			{Name: MetaPath},
			{Name: ContextPath},
			{Name: EntitySet},
		},
	}

	_, res := f.expand(t, d, `<m:Card metaPath="leaf" contextPath="sub"/>`)

	require.Equal(t, StateDone, res.State)
	cp, ok := res.Contexts.Get(ContextPath)
	require.True(t, ok)
	assert.Equal(t, "/Root/sub", cp.Path)
	mp, ok := res.Contexts.Get(MetaPath)
	require.True(t, ok)
	assert.Equal(t, "/Root/sub/leaf", mp.Path)
	assert.Equal(t, "v", mp.Object())

	assert.True(t, res.Missing[EntitySet])
	assert.Same(t, root, f.settings.CurrentContextPath)
	assert.Empty(t, f.settings.CurrentMacro)
}

func TestUnreadyModelMarksContextMissing(t *testing.T) {
	f := defaultFixture(t)
	meta := host.NewObjectModel(host.MetaModel, nil)
	meta.SetReady(false)
	f.settings.Models[host.MetaModel] = meta

	d := &macro.Definition{
		Name:             "Card",
		Namespace:        testNS,
		MetadataContexts: []macro.Property{{Name: "target"}},
	}

	_, res := f.expand(t, d, `<m:Card target="/Items"/>`)

	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.Missing["target"])
	assert.Zero(t, res.Contexts.Len())
}

func TestOpenModeInfersContexts(t *testing.T) {
	items := host.NewObjectModel("items", map[string]interface{}{"count": 2.0})
	vars := map[string]*host.Context{EntitySet: {Model: items, Path: "/"}}

	d := &macro.Definition{
		Name:             "Card",
		Namespace:        testNS,
		MetadataContexts: []macro.Property{{Name: EntitySet}},
	}

	f := newFixture(t, config.Default().Engine, memory.WithVars(vars))
	_, res := f.expand(t, d, `<m:Card/>`)
	assert.True(t, res.Missing[EntitySet], "closed definitions do not ask the visitor")

	d.Open = true
	_, res = f.expand(t, d, `<m:Card/>`)
	ctx, ok := res.Contexts.Get(EntitySet)
	require.True(t, ok)
	assert.Same(t, items, ctx.Model)
}

func TestContextFromStoreKey(t *testing.T) {
	f := defaultFixture(t)
	value := map[string]interface{}{"name": "stored"}
	key := f.engine.Store().Put(value)

	d := &macro.Definition{
		Name:             "Card",
		Namespace:        testNS,
		MetadataContexts: []macro.Property{{Name: "item"}},
	}

	_, res := f.expand(t, d, `<m:Card item="`+key+`"/>`)

	require.Equal(t, StateDone, res.State)
	ctx, ok := res.Contexts.Get("item")
	require.True(t, ok)
	assert.Equal(t, host.ConverterContext, ctx.ModelName())
	assert.Equal(t, value, ctx.Object())
	assert.Zero(t, f.engine.Store().Len())
}

func TestComputedContextIsReconciled(t *testing.T) {
	f := defaultFixture(t)
	d := &macro.Definition{
		Name:             "Card",
		Namespace:        testNS,
		MetadataContexts: []macro.Property{{Name: "summary", Computed: true}},
		Expansion: &macro.ConstructThenTemplate{
			Create: func(inv *macro.Invocation) (macro.Values, error) {
				out := inv.Props.Clone()
				out["summary"] = map[string]interface{}{"total": 3.0}
				return out, nil
			},
			Template: func(p macro.Values, b *tmpl.Builder) (string, error) {
				return `<Text total="{summary>total}"/>`, nil
			},
		},
	}

	root, res := f.expand(t, d, `<m:Card/>`)

	require.Equal(t, StateDone, res.State)
	ctx, ok := res.Contexts.Get("summary")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"total": 3.0}, ctx.Object())
	assert.False(t, res.Missing["summary"])
	assert.Equal(t, "3", xmltree.AttrValue(xmltree.FirstElementChild(root), "total"))
	assert.Zero(t, f.engine.Store().Len())
}

func TestContextRegistersOnce(t *testing.T) {
	f := defaultFixture(t)
	ambient := &host.Context{Model: f.settings.Models["data"], Path: "/"}
	f.settings.BindingContexts[ContextPath] = ambient
	computed := &host.Context{Model: f.settings.Models["data"], Path: "/title"}

	var seen *host.Context
	d := &macro.Definition{
		Name:             "Card",
		Namespace:        testNS,
		MetadataContexts: []macro.Property{{Name: ContextPath, Computed: true}},
		Expansion: &macro.ConstructThenTemplate{
			Create: func(inv *macro.Invocation) (macro.Values, error) {
				seen, _ = inv.Props[ContextPath].(*host.Context)
				out := inv.Props.Clone()
				out[ContextPath] = computed
				return out, nil
			},
			Template: func(p macro.Values, b *tmpl.Builder) (string, error) {
				return `<Text/>`, nil
			},
		},
	}

	_, res := f.expand(t, d, `<m:Card/>`)

	require.Equal(t, StateDone, res.State)
	assert.Same(t, ambient, seen, "the ambient binding context is reused")
	assert.Equal(t, []string{ContextPath}, res.Contexts.Names())
	assert.Equal(t, 1, res.Contexts.Len())
	ctx, ok := res.Contexts.Get(ContextPath)
	require.True(t, ok)
	assert.Same(t, computed, ctx, "a computed context replaces the resolved one")
	assert.Same(t, ambient, f.settings.BindingContexts[ContextPath])
}

func TestModernCoercion(t *testing.T) {
	props := []macro.Property{
		{Name: "count", Type: macro.TypeNumber},
		{Name: "flag", Type: macro.TypeBoolean},
		{Name: "title", Type: macro.TypeString},
	}
	src := `<m:Card count="3" flag="true" title="{data>title}"/>`

	d := modern("Card", func(p macro.Values, b *tmpl.Builder) (string, error) { return "", nil })
	d.Properties = props
	_, res := defaultFixture(t).expand(t, d, src)
	require.Equal(t, StateDone, res.State)
	assert.Equal(t, 3.0, res.Props["count"])
	assert.Equal(t, true, res.Props["flag"])
	assert.Equal(t, "Hello", res.Props["title"])

	l := legacy("Card", nil)
	l.Properties = props
	_, res = defaultFixture(t).expand(t, l, src)
	require.Equal(t, StateDone, res.State)
	assert.Equal(t, "3", res.Props["count"])
	assert.Equal(t, "true", res.Props["flag"])
}

func TestPublicUsageKeepsPrivateDefaults(t *testing.T) {
	f := defaultFixture(t)
	d := &macro.Definition{
		Name:            "Card",
		Namespace:       testNS,
		PublicNamespace: "urn:public",
		Properties: []macro.Property{
			{Name: "title", DefaultValue: "d"},
			{Name: "label", Public: true},
		},
	}
	doc, err := xmltree.ParseString(`<root xmlns:p="urn:public"><p:Card title="t" label="l"/></root>`)
	require.NoError(t, err)

	res := f.engine.Expand(context.Background(), d, xmltree.FirstElementChild(xmltree.FirstElementChild(doc)), f.visitor)

	require.Equal(t, StateDone, res.State)
	assert.Equal(t, "d", res.Props["title"])
	assert.Equal(t, "l", res.Props["label"])
}

func TestFragmentDefinition(t *testing.T) {
	f := defaultFixture(t)
	f.library.Add("parts.box", `<Box title="{this>title}"/>`)
	d := &macro.Definition{
		Name:       "Card",
		Namespace:  testNS,
		Fragment:   "parts.box",
		Properties: []macro.Property{{Name: "title", DefaultValue: "framed"}},
	}

	root, res := f.expand(t, d, `<m:Card/>`)

	require.Equal(t, StateDone, res.State)
	assert.Equal(t, `<Box title="framed"/>`, xmltree.Serialize(xmltree.Children(root)...))
}

func TestNoTemplateRemovesNode(t *testing.T) {
	f := defaultFixture(t)
	d := &macro.Definition{Name: "Card", Namespace: testNS}

	root, res := f.expand(t, d, `<A/><m:Card/><B/>`)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []string{"A", "B"}, names(xmltree.Children(root)))
	assert.Empty(t, res.Nodes)
}

func TestKeyedSubListEntries(t *testing.T) {
	f := defaultFixture(t)
	d := modern("Card", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return `<Bar><slot name="InlineXML_save"/></Bar>`, nil
	})
	d.Aggregations = []macro.Aggregation{{Name: "actions", SubList: true}}

	root, res := f.expand(t, d, `<m:Card><m:actions>`+
		`<Action key="save" placement="After" anchor="edit"><Button/></Action>`+
		`<Action><Ignored/></Action>`+
		`</m:actions></m:Card>`)

	require.Equal(t, StateDone, res.State)
	entries, ok := res.Props["actions"].(macro.ListEntries)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "InlineXML_save", entries[0].Key)
	assert.Equal(t, macro.Position{Placement: "After", Anchor: "edit"}, entries[0].Position)
	assert.Equal(t, "save", entries[0].Properties["key"])

	assert.Equal(t, []string{"Button"}, names(xmltree.Children(xmltree.FirstElementChild(root))))
}

func TestNestedExpansionsShareTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := tracing.New(zap.New(core))

	f := defaultFixture(t)
	WithTracer(tracer)(f.engine)

	inner := legacy("Inner", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return "<Text/>", nil
	})
	require.NoError(t, f.engine.Register(inner))
	outer := legacy("Outer", func(p macro.Values, b *tmpl.Builder) (string, error) {
		return "<m:Inner/>", nil
	})

	_, res := f.expand(t, outer, `<m:Outer/>`)
	tracer.Close()

	require.Equal(t, StateDone, res.State)
	require.Equal(t, 2, logs.Len())

	spans := make(map[string]map[string]interface{})
	for _, entry := range logs.All() {
		fields := entry.ContextMap()
		spans[fields["macro"].(string)] = fields
	}
	assert.Equal(t, res.ID.String(), spans["Outer"]["span_id"])
	assert.Equal(t, res.ID.String(), spans["Inner"]["parent_id"])
	assert.Equal(t, spans["Outer"]["trace_id"], spans["Inner"]["trace_id"])
	assert.Equal(t, "done", spans["Outer"]["state"])
}
