// Package catalog holds the MCU specifications known to the service: the
// built-in set, files from a catalog directory and an optional remote source.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"mcuplan/errcode"
	"mcuplan/types"
)

// Catalog is a concurrency-safe set of MCU specifications keyed by ID.
type Catalog struct {
	mu   sync.RWMutex
	mcus map[string]types.MCU
}

// New returns a catalog seeded with mcus (later entries win on duplicate IDs).
func New(mcus ...types.MCU) *Catalog {
	c := &Catalog{mcus: make(map[string]types.MCU, len(mcus))}
	c.Merge(mcus...)
	return c
}

// NewBuiltin returns a catalog holding the built-in specifications.
func NewBuiltin() *Catalog { return New(Builtin()...) }

// Get returns the MCU with the given ID (case-insensitive).
func (c *Catalog) Get(id string) (types.MCU, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.mcus[strings.ToLower(id)]
	return m, ok
}

// Lookup is Get returning errcode.UnknownMCU.
func (c *Catalog) Lookup(id string) (types.MCU, error) {
	m, ok := c.Get(id)
	if !ok {
		return types.MCU{}, errcode.Wrap(errcode.UnknownMCU, "catalog", id, nil)
	}
	return m, nil
}

// List returns every MCU sorted by ID.
func (c *Catalog) List() []types.MCU {
	c.mu.RLock()
	out := make([]types.MCU, 0, len(c.mcus))
	for _, m := range c.mcus {
		out = append(out, m)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mcus)
}

// Merge adds mcus. Entries with a known ID replace it; new IDs are added.
// Entries failing Validate are skipped.
func (c *Catalog) Merge(mcus ...types.MCU) (added, replaced int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range mcus {
		if Validate(m) != nil {
			continue
		}
		key := strings.ToLower(m.ID)
		if _, ok := c.mcus[key]; ok {
			replaced++
		} else {
			added++
		}
		c.mcus[key] = m
	}
	return added, replaced
}

// Validate checks a specification is structurally usable.
func Validate(m types.MCU) error {
	if strings.TrimSpace(m.ID) == "" {
		return errcode.Wrap(errcode.InvalidParams, "catalog", "mcu without id", nil)
	}
	seenType := map[types.PeripheralType]bool{}
	for _, p := range m.Peripherals {
		if !p.Type.Known() {
			return errcode.Wrap(errcode.UnknownPeripheral, "catalog", m.ID+": "+string(p.Type), nil)
		}
		if seenType[p.Type] {
			return errcode.Wrap(errcode.InvalidParams, "catalog", m.ID+": duplicate peripheral "+string(p.Type), nil)
		}
		seenType[p.Type] = true

		seen := map[string]bool{}
		for _, in := range p.Instances {
			key := strings.ToLower(in.Name)
			if key == "" || seen[key] {
				return errcode.Wrap(errcode.InvalidParams, "catalog",
					fmt.Sprintf("%s: empty or duplicate instance %q", m.ID, in.Name), nil)
			}
			seen[key] = true
			for fn, pin := range in.Pins {
				if strings.TrimSpace(pin) == "" {
					return errcode.Wrap(errcode.InvalidParams, "catalog",
						fmt.Sprintf("%s: %s.%s has no pin", m.ID, in.Name, fn), nil)
				}
			}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// Decode parses YAML or JSON holding either one MCU or a list of them.
func Decode(data []byte) ([]types.MCU, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var list []types.MCU
		if err := doc.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	case yaml.MappingNode:
		var one types.MCU
		if err := doc.Decode(&one); err != nil {
			return nil, err
		}
		return []types.MCU{one}, nil
	}
	return nil, errors.New("catalog file must hold a mapping or a sequence")
}

func isCatalogFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadDir reads every catalog file in dir. Files that fail to parse or hold
// an invalid spec are reported in the joined error; the rest are returned.
func LoadDir(dir string) ([]types.MCU, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	var (
		out  []types.MCU
		errs []error
	)
	for _, e := range entries {
		if e.IsDir() || !isCatalogFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		mcus, err := Decode(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		for _, m := range mcus {
			if err := Validate(m); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
				continue
			}
			out = append(out, m)
		}
	}
	return out, errors.Join(errs...)
}
