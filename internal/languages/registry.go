package languages

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

//go:embed languages.yaml
var defaultTable []byte

// Language is the execution profile of one language: which runtime image
// compiles and runs the staged source.
type Language struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Image   string   `yaml:"image"`
	Aliases []string `yaml:"aliases"`
}

type table struct {
	Languages []Language `yaml:"languages"`
}

// Registry is built once at start and is read-only afterwards, so it needs
// no locking.
type Registry struct {
	byKey map[string]Language
	langs []Language
}

// Default returns the registry built from the embedded table.
func Default() (*Registry, error) {
	return Parse(defaultTable)
}

// Load reads a table from path. An empty path means the embedded table.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language table: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse language table: %w", err)
	}
	if len(t.Languages) == 0 {
		return nil, errors.New("language table is empty")
	}

	r := &Registry{byKey: make(map[string]Language)}
	for _, l := range t.Languages {
		l.ID = normalize(l.ID)
		if l.ID == "" {
			return nil, errors.New("language entry without id")
		}
		if l.Image == "" {
			return nil, fmt.Errorf("language %q has no image", l.ID)
		}
		for _, key := range append([]string{l.ID}, l.Aliases...) {
			key = normalize(key)
			if _, dup := r.byKey[key]; dup {
				return nil, fmt.Errorf("duplicate language key %q", key)
			}
			r.byKey[key] = l
		}
		r.langs = append(r.langs, l)
	}
	sort.Slice(r.langs, func(i, j int) bool { return r.langs[i].ID < r.langs[j].ID })
	return r, nil
}

// Resolve looks up a language by id or alias. It has no side effects.
func (r *Registry) Resolve(id string) (Language, error) {
	l, ok := r.byKey[normalize(id)]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, id)
	}
	return l, nil
}

// List returns the profiles sorted by id.
func (r *Registry) List() []Language {
	out := make([]Language, len(r.langs))
	copy(out, r.langs)
	return out
}

// Images returns the distinct runtime images referenced by the table.
func (r *Registry) Images() []string {
	seen := make(map[string]bool)
	var images []string
	for _, l := range r.langs {
		if !seen[l.Image] {
			seen[l.Image] = true
			images = append(images, l.Image)
		}
	}
	return images
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
