package tmpl

import (
	"strings"
)

// Binding is a path binding, optionally qualified by a model name
type Binding struct {
	Model string
	Path  string
}

// Bind creates an unqualified path binding
func Bind(path string) Binding {
	return Binding{Path: path}
}

// BindModel creates a model-qualified path binding
func BindModel(model, path string) Binding {
	return Binding{Model: model, Path: path}
}

// CompileExpression renders "{path}" or "{model>path}"
func (b Binding) CompileExpression() string {
	return "{" + b.reference() + "}"
}

func (b Binding) reference() string {
	if b.Model == "" {
		return b.Path
	}
	return b.Model + ">" + b.Path
}

// Compiled is expression text that is already in binding syntax
type Compiled string

func (c Compiled) CompileExpression() string {
	return string(c)
}

// Expr builds an expression binding "{= ...}". Each %v marker in format is
// replaced by a reference "${model>path}" to the corresponding binding.
func Expr(format string, refs ...Binding) Compiled {
	parts := strings.Split(format, "%v")
	var b strings.Builder
	b.WriteString("{= ")
	for i, p := range parts {
		b.WriteString(p)
		if i < len(parts)-1 && i < len(refs) {
			b.WriteString("${" + refs[i].reference() + "}")
		}
	}
	b.WriteString("}")
	return Compiled(b.String())
}
