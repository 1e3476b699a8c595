package session

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"iter"
	"slices"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type (
	// CatalogEntry describes one instrument type.
	CatalogEntry struct {
		Type string `yaml:"type"`
		Name string `yaml:"name,omitempty"`
	}

	// Catalog is the set of instrument types a session offers. It is safe
	// for concurrent use.
	Catalog struct {
		mu      sync.Mutex
		entries []CatalogEntry
		index   map[string]int
	}
)

//go:embed catalog.yml
var catalogYaml []byte

var titleCaser = cases.Title(language.English)

// NewCatalog returns a catalog with the built in instrument types.
func NewCatalog() *Catalog {
	c := &Catalog{index: map[string]int{}}
	if err := c.Load(bytes.NewReader(catalogYaml)); err != nil {
		panic(fmt.Errorf("failed to unmarshal builtin catalog: %w", err))
	}
	return c
}

// Load reads yaml entries from r and adds them. An entry with a type that is
// already known replaces the old one.
func (c *Catalog) Load(r io.Reader) error {
	var entries []CatalogEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && err != io.EOF {
		return err
	}
	c.Add(entries...)
	return nil
}

// Add puts entries into the catalog. Entries without a name get the title
// cased type as name.
func (c *Catalog) Add(entries ...CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.Type == "" {
			continue
		}
		if e.Name == "" {
			e.Name = titleCaser.String(e.Type)
		}
		if i, ok := c.index[e.Type]; ok {
			c.entries[i] = e
			continue
		}
		c.index[e.Type] = len(c.entries)
		c.entries = append(c.entries, e)
	}
}

// Lookup returns the entry for an instrument type.
func (c *Catalog) Lookup(typ string) (CatalogEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[typ]
	if !ok {
		return CatalogEntry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Batches yields the entries in batches of at most n, so a caller can
// populate a list a little at a time. The catalog is not locked between
// batches; entries added meanwhile show up if they fall after the current
// position.
func (c *Catalog) Batches(n int) iter.Seq[[]CatalogEntry] {
	n = max(n, 1)
	return func(yield func([]CatalogEntry) bool) {
		for pos := 0; ; pos += n {
			c.mu.Lock()
			if pos >= len(c.entries) {
				c.mu.Unlock()
				return
			}
			batch := slices.Clone(c.entries[pos:min(pos+n, len(c.entries))])
			c.mu.Unlock()
			if !yield(batch) {
				return
			}
		}
	}
}
