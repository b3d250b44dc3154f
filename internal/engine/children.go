package engine

import (
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// classifyChildren sorts the node's element children into aggregation
// buckets and object/array properties
func (x *expansion) classifyChildren() error {
	if err := x.expandTemplating(); err != nil {
		return err
	}

	for _, child := range xmltree.ElementChildren(x.node) {
		if p, ok := x.objectProperty(child.Data); ok {
			x.props[p.Name] = readStructured(child, p.Type)
			xmltree.Detach(child)
			continue
		}

		if startsLower(child.Data) {
			if _, ok := x.md.Aggregation(child.Data); !ok {
				x.collectDefault(child)
				continue
			}
		}

		a, ok := x.aggregation(child.Data)
		if !ok {
			x.log.Warn("Unrecognized child element", zap.String("element", xmltree.Name(child)))
			continue
		}
		x.collect(a, child)
	}

	if x.def.Version() == macro.VersionLegacy {
		return x.visitBuckets()
	}
	return nil
}

// expandTemplating lets the host expand templating directives in place.
// The same index is checked again after each visit since a directive may
// be replaced by other nodes, directives included.
func (x *expansion) expandTemplating() error {
	for i := 0; ; {
		c := xmltree.ChildAt(x.node, i)
		if c == nil {
			break
		}
		if !xmltree.IsElement(c) || c.NamespaceURI != host.TemplateNamespace {
			i++
			continue
		}
		if err := x.v.VisitNode(x.ctx, c); err != nil {
			return err
		}
		if xmltree.ChildAt(x.node, i) == c {
			i++
		}
	}
	return nil
}

// collectDefault places content into the default aggregation
func (x *expansion) collectDefault(child *xmltree.Node) {
	name := x.md.DefaultAggregation
	a, ok := x.md.Aggregation(name)
	if name == "" || !ok {
		x.log.Warn("No default aggregation for child element", zap.String("element", xmltree.Name(child)))
		return
	}

	if a.SubList && !a.Slot && x.def.Version() == macro.VersionModern {
		x.collectEntries(a, []*xmltree.Node{child})
		return
	}
	x.buckets.Ensure(a.Name, !a.Slot).AddElement(child)
}

// collect handles an element naming an aggregation
func (x *expansion) collect(a *macro.Aggregation, container *xmltree.Node) {
	if a.SubList && !a.Slot && x.def.Version() == macro.VersionModern {
		x.collectEntries(a, xmltree.ElementChildren(container))
		xmltree.Detach(container)
		return
	}
	x.buckets.Ensure(a.Name, !a.Slot).AddContainer(container)
}

// collectEntries reads keyed list entries. Each entry gets its own bucket
// named by its key so that templates can place it with a slot.
func (x *expansion) collectEntries(a *macro.Aggregation, items []*xmltree.Node) {
	entries, _ := x.props[a.Name].(macro.ListEntries)

	for _, item := range items {
		key := xmltree.AttrValue(item, "key")
		if key == "" {
			key = xmltree.AttrValue(item, "id")
		}
		if key == "" {
			x.log.Warn("List entry without key or id skipped",
				zap.String("aggregation", a.Name),
				zap.String("element", xmltree.Name(item)))
			xmltree.Detach(item)
			continue
		}

		entry := &macro.ListEntry{
			Key:  macro.InlineKeyPrefix + key,
			Type: item.Data,
			Position: macro.Position{
				Placement: xmltree.AttrValue(item, "placement"),
				Anchor:    xmltree.AttrValue(item, "anchor"),
			},
			Properties: plainAttributes(item),
		}
		if a.Process != nil {
			entry = a.Process(item, entry)
			if entry == nil {
				xmltree.Detach(item)
				continue
			}
		}

		entries = append(entries, entry)
		x.buckets.Ensure(entry.Key, false).AddContainer(item)
	}

	x.props[a.Name] = entries
}

// visitBuckets visits collected content once; legacy definitions see
// resolved children
func (x *expansion) visitBuckets() error {
	for _, b := range x.buckets.All() {
		if err := x.v.VisitChildNodes(x.ctx, b.Wrapper); err != nil {
			return err
		}
	}
	x.visited = true
	return nil
}

// aggregation finds an aggregation by tag name, exactly or with the first
// letter lower-cased
func (x *expansion) aggregation(tag string) (*macro.Aggregation, bool) {
	if a, ok := x.md.Aggregation(tag); ok {
		return a, true
	}
	return x.md.Aggregation(lowerFirst(tag))
}

// objectProperty finds an object or array property named by tag
func (x *expansion) objectProperty(tag string) (*macro.Property, bool) {
	for _, name := range []string{tag, lowerFirst(tag)} {
		if p, ok := x.md.Property(name); ok && (p.Type == macro.TypeObject || p.Type == macro.TypeArray) {
			return p, true
		}
	}
	return nil, false
}

// readStructured reads an element into a plain object (its attributes plus
// one object per child element) or an array (one object per child element)
func readStructured(el *xmltree.Node, t macro.PropertyType) interface{} {
	if t == macro.TypeArray {
		items := make([]interface{}, 0)
		for _, c := range xmltree.ElementChildren(el) {
			items = append(items, attributeObject(c))
		}
		return items
	}

	obj := attributeObject(el)
	for _, c := range xmltree.ElementChildren(el) {
		obj[c.Data] = attributeObject(c)
	}
	return obj
}

func attributeObject(el *xmltree.Node) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range plainAttributes(el) {
		out[k] = v
	}
	return out
}

// plainAttributes returns attributes without namespace declarations
func plainAttributes(el *xmltree.Node) map[string]string {
	out := make(map[string]string, len(el.Attr))
	for _, a := range el.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out[xmltree.AttrName(a)] = a.Value
	}
	return out
}

func startsLower(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLower(r)
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
