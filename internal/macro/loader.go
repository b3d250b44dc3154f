package macro

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/blockforge/internal/tmpl"
)

// DefaultPattern matches definition files below a definitions directory
const DefaultPattern = "**/*.{yaml,yml,toml}"

// definitionFile is the on-disk layout of a definitions file
type definitionFile struct {
	Namespace       string           `yaml:"namespace" toml:"namespace"`
	PublicNamespace string           `yaml:"publicNamespace" toml:"publicNamespace"`
	BuildingBlocks  []fileDefinition `yaml:"buildingBlocks" toml:"buildingBlocks"`
}

type fileDefinition struct {
	Definition `yaml:",inline" toml:",inline"`

	// Template is static markup; %{name} inserts a processed value
	Template string `yaml:"template" toml:"template"`
}

// Loader registers declarative definitions from YAML and TOML files
type Loader struct {
	registry *Registry
	log      *zap.Logger
}

// NewLoader creates a loader feeding registry
func NewLoader(registry *Registry, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{registry: registry, log: log}
}

// LoadDir loads every file under dir matching pattern. A file that fails to
// load is logged and counted, it does not stop the walk.
func (l *Loader) LoadDir(dir, pattern string) (loaded, failed int, err error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
		l.log.Warn("Definitions directory not found", zap.String("dir", dir))
		return 0, 0, nil
	}

	return l.LoadFS(os.DirFS(dir), pattern)
}

// LoadFS loads every file of fsys matching pattern
func (l *Loader) LoadFS(fsys fs.FS, pattern string) (loaded, failed int, err error) {
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid definitions pattern %q: %w", pattern, err)
	}

	for _, name := range matches {
		data, readErr := fs.ReadFile(fsys, name)
		if readErr == nil {
			var n int
			n, readErr = l.Load(name, data)
			loaded += n
		}
		if readErr != nil {
			l.log.Error("Failed to load definitions", zap.String("file", name), zap.Error(readErr))
			failed++
			continue
		}
		l.log.Debug("Loaded definitions", zap.String("file", name))
	}

	l.log.Info("Definitions loaded", zap.Int("loaded", loaded), zap.Int("failed", failed))
	return loaded, failed, nil
}

// Load parses one file's content, picking the format by extension, and
// registers its definitions
func (l *Loader) Load(name string, data []byte) (int, error) {
	defs, err := ParseDefinitions(data, path.Ext(name))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	for _, d := range defs {
		if err := l.registry.Register(d); err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
	}
	return len(defs), nil
}

// ParseDefinitions decodes a definitions document. ext selects the format:
// ".toml" for TOML, anything else is YAML.
func ParseDefinitions(data []byte, ext string) ([]*Definition, error) {
	var file definitionFile
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	out := make([]*Definition, 0, len(file.BuildingBlocks))
	for i := range file.BuildingBlocks {
		fd := file.BuildingBlocks[i]
		d := fd.Definition
		if d.Namespace == "" {
			d.Namespace = file.Namespace
		}
		if d.PublicNamespace == "" {
			d.PublicNamespace = file.PublicNamespace
		}
		for j := range d.Properties {
			d.Properties[j].DefaultValue = normalize(d.Properties[j].Type, d.Properties[j].DefaultValue)
		}
		if fd.Template != "" {
			d.Expansion = &ConstructThenTemplate{Template: StaticTemplate(fd.Template)}
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}

var placeholder = regexp.MustCompile(`%\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// StaticTemplate renders fixed markup, replacing each %{name} with the
// encoded processed value of that name
func StaticTemplate(text string) func(Values, *tmpl.Builder) (string, error) {
	return func(props Values, b *tmpl.Builder) (string, error) {
		parts := placeholder.Split(text, -1)
		names := placeholder.FindAllStringSubmatch(text, -1)
		values := make([]interface{}, len(names))
		for i, m := range names {
			values[i] = props[m[1]]
		}
		return b.XML(parts, values...), nil
	}
}

// normalize brings decoded numbers to float64 so YAML and TOML agree
func normalize(t PropertyType, v interface{}) interface{} {
	if t != TypeNumber {
		return v
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return v
}
