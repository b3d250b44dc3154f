package xmltree

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// fragmentRoot is the synthetic element wrapping parsed fragments
const fragmentRoot = "bbFragmentRoot"

// ErrStrayText reports non-whitespace text directly between the top-level
// elements of a fragment
var ErrStrayText = errors.New("xmltree: stray text between elements")

// ParseError is the parser error marker: the input is not well-formed
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return "xmltree: " + e.Msg
}

// IsMalformed reports whether err marks malformed markup
func IsMalformed(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) || errors.Is(err, ErrStrayText)
}

func malformed(format string, args ...interface{}) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// Parse reads a complete document
func Parse(r io.Reader) (*Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseString(string(src))
}

// ParseString parses a complete document from a string. Declarations and
// whitespace outside the root element are dropped.
func ParseString(s string) (*Node, error) {
	doc, err := xmlquery.Parse(strings.NewReader(strings.TrimSpace(s)))
	if err != nil {
		return nil, malformed("%v", err)
	}

	var root *Node
	for _, c := range Children(doc) {
		switch c.Type {
		case ElementNode:
			if root != nil {
				return nil, malformed("multiple root elements")
			}
			root = c
		case TextNode, CDataNode:
			if strings.TrimSpace(c.Data) != "" {
				return nil, malformed("text outside the root element")
			}
			xmlquery.RemoveFromTree(c)
		case CommentNode:
		default:
			xmlquery.RemoveFromTree(c)
		}
	}
	if root == nil {
		return nil, malformed("no root element")
	}
	if err := resolve(root); err != nil {
		return nil, err
	}
	return doc, nil
}

// resolve checks that every prefix is bound and settles the prefix of
// nodes whose namespace is reachable through another in-scope binding
func resolve(n *Node) error {
	if n.Type != ElementNode {
		return nil
	}
	if space, _ := declared(n, n.Prefix); space != n.NamespaceURI {
		p, ok := prefixFor(n, n.NamespaceURI, true)
		if !ok {
			return malformed("unbound prefix %q on element <%s>", n.Prefix, Name(n))
		}
		n.Prefix = p
	}
	for i := range n.Attr {
		a := &n.Attr[i]
		if _, ok := isDeclaration(*a); ok || a.Name.Space == "" {
			continue
		}
		if a.NamespaceURI == XMLNamespace {
			a.Name.Space = "xml"
			continue
		}
		if space, ok := declared(n, a.Name.Space); ok && space == a.NamespaceURI {
			continue
		}
		p, ok := prefixFor(n, a.NamespaceURI, false)
		if !ok {
			return malformed("unbound prefix %q on attribute %s", a.Name.Space, AttrName(*a))
		}
		a.Name.Space = p
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := resolve(c); err != nil {
			return err
		}
	}
	return nil
}

// declared resolves prefix against xmlns declarations only
func declared(n *Node, prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for cur := n; cur != nil; cur = cur.Parent {
		for _, a := range cur.Attr {
			if p, ok := isDeclaration(a); ok && p == prefix {
				return a.Value, true
			}
		}
	}
	return "", false
}

// prefixFor finds a prefix declared in scope at n for space. Attributes
// cannot use the default namespace.
func prefixFor(n *Node, space string, allowDefault bool) (string, bool) {
	if space == "" {
		if !allowDefault {
			return "", false
		}
		s, _ := declared(n, "")
		return "", s == ""
	}
	scope := make(map[string]string)
	collectScope(n, scope)
	var found []string
	for p, s := range scope {
		if s == space && (p != "" || allowDefault) {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Strings(found)
	return found[0], true
}

// ParseFragment wraps text in a synthetic root declaring the given
// prefix → namespace bindings ("" is the default namespace), parses it and
// unwraps the result into detached sibling nodes. Top-level text that is
// not whitespace is rejected with ErrStrayText.
func ParseFragment(text string, namespaces map[string]string) ([]*Node, error) {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(fragmentRoot)
	prefixes := make([]string, 0, len(namespaces))
	for p := range namespaces {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		if p == "" {
			b.WriteString(` xmlns="`)
		} else {
			b.WriteString(` xmlns:` + p + `="`)
		}
		b.WriteString(EscapeAttr(namespaces[p]))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(text)
	b.WriteString("</" + fragmentRoot + ">")

	doc, err := ParseString(b.String())
	if err != nil {
		return nil, err
	}
	root := FirstElementChild(doc)

	var nodes []*Node
	for _, c := range Children(root) {
		if c.Type == TextNode || c.Type == CDataNode {
			if strings.TrimSpace(c.Data) != "" {
				return nil, fmt.Errorf("%w: %q", ErrStrayText, strings.TrimSpace(c.Data))
			}
			continue
		}
		nodes = append(nodes, c)
	}
	for _, c := range nodes {
		Detach(c)
	}
	return nodes, nil
}
