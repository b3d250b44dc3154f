// Package xmltree holds the markup tree that building blocks are expanded
// in. Nodes are xmlquery nodes; this package adds fragment parsing under
// inherited prefix bindings, prefix validation, index-addressed splices
// and serialization that re-declares namespaces for moved subtrees.
package xmltree

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Node is an xmlquery node. Element nodes carry the local name in Data and
// the resolved namespace in NamespaceURI.
type Node = xmlquery.Node

// Attr is an xmlquery attribute: Name.Space holds the prefix and
// NamespaceURI the namespace it resolves to.
type Attr = xmlquery.Attr

const (
	DocumentNode = xmlquery.DocumentNode
	ElementNode  = xmlquery.ElementNode
	TextNode     = xmlquery.TextNode
	CDataNode    = xmlquery.CharDataNode
	CommentNode  = xmlquery.CommentNode
)

// XMLNamespace is implicitly bound to the "xml" prefix
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// NewDocument creates an empty document node
func NewDocument() *Node {
	return &Node{Type: DocumentNode}
}

// NewElement creates a detached element
func NewElement(prefix, local, space string) *Node {
	return &Node{Type: ElementNode, Prefix: prefix, Data: local, NamespaceURI: space}
}

// NewText creates a detached text node
func NewText(data string) *Node {
	return &Node{Type: TextNode, Data: data}
}

// NewComment creates a detached comment node
func NewComment(data string) *Node {
	return &Node{Type: CommentNode, Data: data}
}

// Name returns the qualified element name
func Name(n *Node) string {
	if n.Prefix == "" {
		return n.Data
	}
	return n.Prefix + ":" + n.Data
}

// AttrName returns the qualified attribute name
func AttrName(a Attr) string {
	if a.Name.Space == "" {
		return a.Name.Local
	}
	return a.Name.Space + ":" + a.Name.Local
}

// IsElement reports whether n is an element
func IsElement(n *Node) bool {
	return n != nil && n.Type == ElementNode
}

// isDeclaration reports whether a declares a namespace binding and which
// prefix it binds
func isDeclaration(a Attr) (string, bool) {
	switch {
	case a.Name.Space == "xmlns":
		return a.Name.Local, true
	case a.Name.Space == "" && a.Name.Local == "xmlns":
		return "", true
	}
	return "", false
}

// LookupAttr returns the value of the attribute with the given qualified
// name
func LookupAttr(n *Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if AttrName(a) == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrValue returns the attribute value or "" when absent
func AttrValue(n *Node, name string) string {
	return n.SelectAttr(name)
}

// HasAttr reports whether the attribute is present
func HasAttr(n *Node, name string) bool {
	_, ok := LookupAttr(n, name)
	return ok
}

// SetAttr sets or adds an attribute by qualified name. A new prefixed
// attribute resolves its namespace against the bindings in scope.
func SetAttr(n *Node, name, value string) {
	for i := range n.Attr {
		if AttrName(n.Attr[i]) == name {
			n.Attr[i].Value = value
			return
		}
	}
	prefix, local := SplitName(name)
	attr := Attr{Name: xml.Name{Space: prefix, Local: local}, Value: value}
	switch prefix {
	case "":
	case "xmlns":
		attr.NamespaceURI = "xmlns"
	default:
		attr.NamespaceURI = LookupNamespace(n, prefix)
	}
	n.Attr = append(n.Attr, attr)
}

// RemoveAttr deletes an attribute, reporting whether it existed
func RemoveAttr(n *Node, name string) bool {
	for i := range n.Attr {
		if AttrName(n.Attr[i]) == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

// LookupNamespace resolves a prefix against the xmlns declarations of n and
// its ancestors, falling back to the namespace of an element using it.
func LookupNamespace(n *Node, prefix string) string {
	if prefix == "xml" {
		return XMLNamespace
	}
	for cur := n; cur != nil; cur = cur.Parent {
		for _, a := range cur.Attr {
			if p, ok := isDeclaration(a); ok && p == prefix {
				return a.Value
			}
		}
		if cur.Type == ElementNode && cur.Prefix == prefix && cur.NamespaceURI != "" {
			return cur.NamespaceURI
		}
	}
	return ""
}

// Namespaces returns the prefix bindings in scope at n. Declarations win
// over bindings implied by the namespace of an ancestor element.
func Namespaces(n *Node) map[string]string {
	scope := make(map[string]string)
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == ElementNode && cur.NamespaceURI != "" {
			if _, ok := scope[cur.Prefix]; !ok {
				scope[cur.Prefix] = cur.NamespaceURI
			}
		}
	}
	collectScope(n, scope)
	return scope
}

// Children returns the direct children of n
func Children(n *Node) []*Node {
	var out []*Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// ElementChildren returns the direct element children
func ElementChildren(n *Node) []*Node {
	var out []*Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// FirstElementChild returns the first element child, or nil
func FirstElementChild(n *Node) *Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == ElementNode {
			return c
		}
	}
	return nil
}

// Index returns the position of n within its parent, or -1 when detached
func Index(n *Node) int {
	if n.Parent == nil {
		return -1
	}
	i := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c == n {
			return i
		}
		i++
	}
	return -1
}

// ChildAt returns the i-th child of n, or nil when out of range
func ChildAt(n *Node, i int) *Node {
	if i < 0 {
		return nil
	}
	c := n.FirstChild
	for ; c != nil && i > 0; i-- {
		c = c.NextSibling
	}
	return c
}

// Root returns the topmost ancestor of n
func Root(n *Node) *Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Detach removes n from its parent
func Detach(n *Node) {
	if n.Parent != nil {
		xmlquery.RemoveFromTree(n)
	}
	n.Parent, n.PrevSibling, n.NextSibling = nil, nil, nil
}

// AppendChild appends nodes to parent, detaching them from previous parents
func AppendChild(parent *Node, nodes ...*Node) {
	for _, c := range nodes {
		Detach(c)
		xmlquery.AddChild(parent, c)
	}
}

// InsertAt splices nodes into parent's children at index i. The nodes are
// detached first, so i addresses the children that remain.
func InsertAt(parent *Node, i int, nodes ...*Node) {
	for _, c := range nodes {
		Detach(c)
	}
	ref := ChildAt(parent, i)
	for _, c := range nodes {
		if ref == nil {
			xmlquery.AddChild(parent, c)
			continue
		}
		insertBefore(ref, c)
	}
}

func insertBefore(ref, n *Node) {
	parent := ref.Parent
	n.Parent = parent
	n.NextSibling = ref
	n.PrevSibling = ref.PrevSibling
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = n
	} else {
		parent.FirstChild = n
	}
	ref.PrevSibling = n
}

// ReplaceWith splices nodes into the parent in place of n. An empty list
// simply removes n.
func ReplaceWith(n *Node, nodes ...*Node) error {
	i := Index(n)
	if i < 0 {
		return fmt.Errorf("xmltree: cannot replace detached node <%s>", Name(n))
	}
	parent := n.Parent
	Detach(n)
	InsertAt(parent, i, nodes...)
	return nil
}

// Clone deep-copies n; the copy is detached
func Clone(n *Node) *Node {
	c := &Node{
		Type:         n.Type,
		Prefix:       n.Prefix,
		Data:         n.Data,
		NamespaceURI: n.NamespaceURI,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]Attr(nil), n.Attr...)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		xmlquery.AddChild(c, Clone(child))
	}
	return c
}

// SplitName splits a qualified name into prefix and local part
func SplitName(name string) (prefix, local string) {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
