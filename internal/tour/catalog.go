package tour

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTour is returned when a tour name is not in the catalog.
var ErrUnknownTour = errors.New("unknown tour")

type fileDoc struct {
	Tours []rawDefinition `yaml:"tours"`
}

type rawDefinition struct {
	Name  string    `yaml:"name"`
	Steps []rawStep `yaml:"steps"`
}

type rawStep struct {
	Target     string         `yaml:"target"`
	Title      string         `yaml:"title"`
	Body       string         `yaml:"body"`
	Placement  string         `yaml:"placement"`
	Navigation *rawNavigation `yaml:"navigation"`
}

type rawNavigation struct {
	Path         string `yaml:"path"`
	Continuation string `yaml:"continuation"`
}

// Catalog holds every loaded tour definition by name.
type Catalog struct {
	mu    sync.RWMutex
	tours map[string]*Definition
}

func NewCatalog() *Catalog {
	return &Catalog{tours: make(map[string]*Definition)}
}

// Get returns the named definition.
func (c *Catalog) Get(name string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.tours[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTour, name)
	}
	return def, nil
}

// Has reports whether name is a known tour.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tours[name]
	return ok
}

// Names returns the sorted tour names.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tours))
	for name := range c.tours {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replace swaps the whole catalog contents.
func (c *Catalog) Replace(other *Catalog) {
	other.mu.RLock()
	tours := make(map[string]*Definition, len(other.tours))
	for k, v := range other.tours {
		tours[k] = v
	}
	other.mu.RUnlock()

	c.mu.Lock()
	c.tours = tours
	c.mu.Unlock()
}

// LoadDir reads every .yaml/.yml file in dir in name order and returns the
// linked catalog. Files that fail to parse are skipped with a warning;
// definitions that fail validation make the whole load fail.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tours directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var raws []rawDefinition
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read tour file %s: %v", path, err)
			continue
		}
		var doc fileDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			log.Printf("Warning: Failed to parse tour file %s: %v", path, err)
			continue
		}
		raws = append(raws, doc.Tours...)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("no tour definitions found in %s", dir)
	}
	return build(raws)
}

// Parse builds a catalog from a single YAML document.
func Parse(data []byte) (*Catalog, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tours: %w", err)
	}
	return build(doc.Tours)
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// build runs in two passes so continuations may point at tours declared
// later, or at each other.
func build(raws []rawDefinition) (*Catalog, error) {
	cat := NewCatalog()
	for _, raw := range raws {
		if _, dup := cat.tours[raw.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tour name %q", ErrInvalidDefinition, raw.Name)
		}
		cat.tours[raw.Name] = &Definition{Name: raw.Name}
	}

	for _, raw := range raws {
		def := cat.tours[raw.Name]
		def.Steps = make([]Step, 0, len(raw.Steps))
		for i, rs := range raw.Steps {
			content := Sanitize(Content{
				Target:    strings.TrimSpace(rs.Target),
				Title:     rs.Title,
				Body:      rs.Body,
				Placement: Placement(strings.ToLower(strings.TrimSpace(rs.Placement))),
			})
			if rs.Navigation == nil {
				def.Steps = append(def.Steps, PlainStep{Content: content})
				continue
			}
			nav := NavigatingStep{Content: content, Destination: strings.TrimSpace(rs.Navigation.Path)}
			if name := rs.Navigation.Continuation; name != "" {
				cont, ok := cat.tours[name]
				if !ok {
					return nil, fmt.Errorf("%w %q: step %d continues with unknown tour %q", ErrInvalidDefinition, raw.Name, i, name)
				}
				nav.Continuation = cont
			}
			def.Steps = append(def.Steps, nav)
		}
	}

	var errs []error
	for _, name := range cat.Names() {
		if err := cat.tours[name].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cat, nil
}
