package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/blockforge/internal/host"
)

// FragmentSuffix marks fragment files
const FragmentSuffix = ".fragment.xml"

// ErrFragmentNotFound is returned for an unknown fragment name
var ErrFragmentNotFound = errors.New("fragment not found")

// Library holds named fragment sources
type Library struct {
	mu        sync.RWMutex
	fragments map[string]string
}

// NewLibrary creates an empty library
func NewLibrary() *Library {
	return &Library{fragments: make(map[string]string)}
}

// Add stores a fragment under name, replacing any previous one
func (l *Library) Add(name, text string) {
	l.mu.Lock()
	l.fragments[name] = text
	l.mu.Unlock()
}

// Get returns the fragment source for name
func (l *Library) Get(name string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	text, ok := l.fragments[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFragmentNotFound, name)
	}
	return text, nil
}

// Names returns the fragment names in sorted order
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.fragments))
	for name := range l.fragments {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LoadDir loads every *.fragment.xml file under dir
func (l *Library) LoadDir(dir string) (int, error) {
	return l.LoadFS(os.DirFS(dir))
}

// LoadFS loads fragment files from fsys. A file "forms/field.fragment.xml"
// becomes the fragment "forms.field".
func (l *Library) LoadFS(fsys fs.FS) (int, error) {
	matches, err := doublestar.Glob(fsys, "**/*"+FragmentSuffix)
	if err != nil {
		return 0, fmt.Errorf("glob fragments: %w", err)
	}

	for _, path := range matches {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return 0, fmt.Errorf("read fragment %s: %w", path, err)
		}
		name := strings.ReplaceAll(strings.TrimSuffix(path, FragmentSuffix), "/", ".")
		l.Add(name, string(data))
	}
	return len(matches), nil
}

// LoadModel decodes a JSON object into a named model
func LoadModel(name string, data []byte) (*host.ObjectModel, error) {
	var root map[string]interface{}
	if err := sonic.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", name, err)
	}
	return host.NewObjectModel(name, root), nil
}
