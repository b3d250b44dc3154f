// Package diag renders diagnostic fragments: visible, inspectable markup
// that takes the place of a macro whose expansion failed.
//
// Free-form payloads (source markup, trace, stack) are base64-encoded into
// attributes so that they can never break the surrounding markup.
package diag

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/base64x"

	"github.com/GriffinCanCode/blockforge/internal/host"
	"github.com/GriffinCanCode/blockforge/internal/shared/id"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

const (
	Namespace = "urn:blockforge:diagnostics:1"
	Prefix    = "diag"
)

// Trace captures the property state known when an expansion failed
type Trace struct {
	Initial         map[string]interface{} `json:"initialProperties"`
	Resolved        map[string]interface{} `json:"resolvedProperties"`
	MissingContexts []string               `json:"missingContexts,omitempty"`
}

// NewTrace snapshots initial and resolved property maps. Context handles
// are replaced by their path, model and current value.
func NewTrace(initial, resolved map[string]interface{}, missing map[string]bool) *Trace {
	t := &Trace{
		Initial:  snapshotMap(initial),
		Resolved: snapshotMap(resolved),
	}
	for name, isMissing := range missing {
		if isMissing {
			t.MissingContexts = append(t.MissingContexts, name)
		}
	}
	sort.Strings(t.MissingContexts)
	return t
}

// JSON serializes the trace; it never fails
func (t *Trace) JSON() string {
	if t == nil {
		return "{}"
	}
	data, err := sonic.Marshal(t)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// Report is everything a diagnostic fragment shows
type Report struct {
	ID      id.DiagnosticID
	Macro   string
	Code    string
	Message string
	Source  string
	Trace   *Trace
	Stack   string
}

// Node builds the diagnostic element
func (r *Report) Node() *xmltree.Node {
	if r.ID == "" {
		r.ID = id.NewDiagnosticID()
	}
	el := xmltree.NewElement(Prefix, "Error", Namespace)
	xmltree.SetAttr(el, "xmlns:"+Prefix, Namespace)
	xmltree.SetAttr(el, "id", r.ID.String())
	xmltree.SetAttr(el, "macro", r.Macro)
	xmltree.SetAttr(el, "code", r.Code)
	xmltree.SetAttr(el, "message", r.Message)
	xmltree.SetAttr(el, "source", Encode(r.Source))
	xmltree.SetAttr(el, "trace", Encode(r.Trace.JSON()))
	if r.Stack != "" {
		xmltree.SetAttr(el, "stack", Encode(r.Stack))
	}

	src := xmltree.NewElement(Prefix, "Source", Namespace)
	xmltree.AppendChild(src, xmltree.NewText(r.Source))
	xmltree.AppendChild(el, src)
	return el
}

// Markup renders the diagnostic element as text
func (r *Report) Markup() string {
	return xmltree.Serialize(r.Node())
}

// TemplateError renders the fragment that replaces generated text which
// failed validation
func TemplateError(text string, err error) string {
	el := xmltree.NewElement(Prefix, "TemplateError", Namespace)
	xmltree.SetAttr(el, "xmlns:"+Prefix, Namespace)
	xmltree.SetAttr(el, "message", err.Error())
	xmltree.SetAttr(el, "source", Encode(text))
	return xmltree.Serialize(el)
}

// IsDiagnostic reports whether n is a diagnostic element
func IsDiagnostic(n *xmltree.Node) bool {
	return xmltree.IsElement(n) && n.NamespaceURI == Namespace
}

// Encode base64-encodes a payload
func Encode(s string) string {
	return base64x.StdEncoding.EncodeToString([]byte(s))
}

// Decode reverses Encode
func Decode(s string) (string, error) {
	data, err := base64x.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func snapshotMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = snapshot(v, 0)
	}
	return out
}

const maxSnapshotDepth = 8

func snapshot(v interface{}, depth int) interface{} {
	if depth > maxSnapshotDepth {
		return "…"
	}
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64:
		return val
	case *host.Context:
		if val == nil {
			return nil
		}
		return map[string]interface{}{
			"model": val.ModelName(),
			"path":  val.Path,
			"value": snapshot(val.Object(), depth+1),
		}
	case *xmltree.Node:
		return xmltree.Serialize(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = snapshot(item, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = snapshot(item, depth+1)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return "<function>"
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Sprintf("%v", v)
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = snapshot(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = snapshot(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return snapshot(rv.Elem().Interface(), depth+1)
	case reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T", v)
	}
	return v
}
