package engine

import (
	"strconv"
	"strings"

	"github.com/mohae/deepcopy"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/indirect"
	"github.com/GriffinCanCode/blockforge/internal/macro"
	"github.com/GriffinCanCode/blockforge/internal/xmltree"
)

// attributes that never count as unrecognized
var reservedAttributes = map[string]bool{
	"metadataContexts": true,
}

// resolveProperties seeds defaults and reads declared properties from the
// node's attributes
func (x *expansion) resolveProperties() error {
	modern := x.def.Version() == macro.VersionModern

	for _, p := range x.md.Properties {
		value := defaultValue(p)

		if xmltree.HasAttr(x.node, p.Name) {
			if x.public && !p.Public {
				x.log.Error("Property is not public and cannot be set in a public usage, keeping default",
					zap.String("property", p.Name))
			} else {
				v, err := x.readAttribute(p, modern)
				if err != nil {
					return err
				}
				value = v
			}
		} else if value == nil && p.Required {
			return NewMissingRequiredProperty(x.def.Name, p.Name)
		}

		x.props[p.Name] = value
	}

	x.warnUnrecognized()
	return nil
}

// readAttribute resolves one attribute through the host and reads it back
func (x *expansion) readAttribute(p macro.Property, modern bool) (interface{}, error) {
	raw := xmltree.AttrValue(x.node, p.Name)

	if (p.Type == macro.TypeObject || p.Type == macro.TypeArray) && indirect.IsKey(raw) {
		if v, ok := x.e.store.Take(raw); ok {
			return v, nil
		}
		x.log.Warn("Indirect store key not found", zap.String("property", p.Name), zap.String("key", raw))
	}

	if err := x.v.VisitAttribute(x.ctx, x.node, p.Name); err != nil {
		return nil, err
	}
	text := xmltree.AttrValue(x.node, p.Name)

	if modern && !strings.HasPrefix(raw, "{") {
		return coerce(p.Type, text), nil
	}
	return text, nil
}

func (x *expansion) warnUnrecognized() {
	for _, a := range x.node.Attr {
		name := xmltree.AttrName(a)
		if strings.Contains(name, ":") || strings.HasPrefix(name, "xmlns") || reservedAttributes[name] {
			continue
		}
		if _, ok := x.md.Property(name); ok {
			continue
		}
		if _, ok := x.md.Context(name); ok {
			continue
		}
		x.log.Warn("Unrecognized parameter", zap.String("attribute", name))
	}
}

// defaultValue returns the declared default; objects and arrays are cloned
// so invocations never share them
func defaultValue(p macro.Property) interface{} {
	if p.DefaultValue == nil {
		return nil
	}
	if p.Type == macro.TypeObject || p.Type == macro.TypeArray {
		return deepcopy.Copy(p.DefaultValue)
	}
	return p.DefaultValue
}

// coerce converts literal text for boolean and number properties
func coerce(t macro.PropertyType, text string) interface{} {
	switch t {
	case macro.TypeBoolean:
		switch text {
		case "true":
			return true
		case "false":
			return false
		}
	case macro.TypeNumber:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	}
	return text
}
