// Package catalog holds the static list of spawnable kitchen object types.
// Spawn requests refer to entries by their position in the list.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Entry describes one kind of kitchen object.
type Entry struct {
	Name     string `yaml:"name"`
	Display  string `yaml:"display"`
	Sprite   string `yaml:"sprite"`
	SlicesTo string `yaml:"slices_to,omitempty"`
	CooksTo  string `yaml:"cooks_to,omitempty"`
}

type file struct {
	Objects []Entry `yaml:"objects"`
}

// Catalog maps type indices to entries.
type Catalog struct {
	entries []Entry
	byName  map[string]int
}

// Default returns the catalog shipped with the binaries.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file from disk.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and checks that names are unique and that
// every slices_to/cooks_to target exists.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Objects) == 0 {
		return nil, fmt.Errorf("catalog has no objects")
	}

	c := &Catalog{
		entries: f.Objects,
		byName:  make(map[string]int, len(f.Objects)),
	}
	for i, e := range f.Objects {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d has no name", i)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("catalog entry %q defined twice", e.Name)
		}
		c.byName[e.Name] = i
	}
	for _, e := range f.Objects {
		for _, target := range []string{e.SlicesTo, e.CooksTo} {
			if target == "" {
				continue
			}
			if _, ok := c.byName[target]; !ok {
				return nil, fmt.Errorf("catalog entry %q refers to unknown %q", e.Name, target)
			}
		}
	}
	return c, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Lookup returns the entry at typeIndex.
func (c *Catalog) Lookup(typeIndex int) (Entry, bool) {
	if typeIndex < 0 || typeIndex >= len(c.entries) {
		return Entry{}, false
	}
	return c.entries[typeIndex], true
}

// IndexOf returns the type index of the named entry.
func (c *Catalog) IndexOf(name string) (int, bool) {
	i, ok := c.byName[name]
	return i, ok
}
