package xmltree

import (
	"strings"
)

var (
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
		"\n", "&#xA;",
		"\t", "&#x9;",
	)
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
)

// EscapeAttr escapes a value for use inside a quoted attribute
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// EscapeText escapes character data
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// Serialize renders nodes as markup. Namespace bindings that are not
// declared within the serialized subtree are re-declared on the element
// that first needs them, so detached fragments stay well-formed.
func Serialize(nodes ...*Node) string {
	var b strings.Builder
	for _, n := range nodes {
		scope := map[string]string{"xml": XMLNamespace}
		if n.Parent != nil {
			collectScope(n.Parent, scope)
		}
		writeNode(&b, n, scope)
	}
	return b.String()
}

// collectScope gathers the bindings declared on n and its ancestors
func collectScope(n *Node, scope map[string]string) {
	var chain []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, a := range chain[i].Attr {
			if p, ok := isDeclaration(a); ok {
				scope[p] = a.Value
			}
		}
	}
}

func copyScope(s map[string]string) map[string]string {
	c := make(map[string]string, len(s)+1)
	for k, v := range s {
		c[k] = v
	}
	return c
}

func writeNode(b *strings.Builder, n *Node, scope map[string]string) {
	switch n.Type {
	case DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNode(b, c, scope)
		}
	case TextNode:
		b.WriteString(EscapeText(n.Data))
	case CDataNode:
		b.WriteString("<![CDATA[")
		b.WriteString(n.Data)
		b.WriteString("]]>")
	case CommentNode:
		b.WriteString("<!--")
		b.WriteString(n.Data)
		b.WriteString("-->")
	case ElementNode:
		local := scope
		owned := false
		bind := func(prefix, space string) {
			if !owned {
				local = copyScope(scope)
				owned = true
			}
			local[prefix] = space
		}

		b.WriteString("<")
		b.WriteString(Name(n))

		// explicit declarations shadow inherited bindings
		for _, a := range n.Attr {
			if p, ok := isDeclaration(a); ok {
				bind(p, a.Value)
			}
		}
		for _, a := range n.Attr {
			b.WriteString(" ")
			b.WriteString(AttrName(a))
			b.WriteString(`="`)
			b.WriteString(EscapeAttr(a.Value))
			b.WriteString(`"`)
		}

		declare := func(prefix, space string) {
			cur, ok := local[prefix]
			if ok && cur == space {
				return
			}
			if !ok && space == "" {
				return
			}
			bind(prefix, space)
			if prefix == "" {
				b.WriteString(` xmlns="`)
			} else {
				b.WriteString(` xmlns:` + prefix + `="`)
			}
			b.WriteString(EscapeAttr(space))
			b.WriteString(`"`)
		}
		declare(n.Prefix, n.NamespaceURI)
		for _, a := range n.Attr {
			if _, ok := isDeclaration(a); !ok && a.Name.Space != "" && a.NamespaceURI != "" {
				declare(a.Name.Space, a.NamespaceURI)
			}
		}

		if n.FirstChild == nil {
			b.WriteString("/>")
			return
		}
		b.WriteString(">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNode(b, c, local)
		}
		b.WriteString("</")
		b.WriteString(Name(n))
		b.WriteString(">")
	}
}
