// Package catalog loads the declarative form catalog and resolves requested
// forms by domain and URL.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RenderType is the catalog-declared hint controlling response content-type
// handling. Both types render the same HTML text.
type RenderType string

const (
	RenderStatic  RenderType = "static"
	RenderDynamic RenderType = "dynamic"
)

// FormDefinition is one renderable catalog entry. Immutable after load.
type FormDefinition struct {
	Key          string // "<domain>/<url>"
	Domain       string
	URL          string
	Version      string
	TemplateBody string
	RenderType   RenderType
}

// Catalog maps "<domain>/<url>" keys to form definitions. Lookups read a
// single atomically-swapped snapshot, so a concurrent Reload never exposes a
// partially-built mapping.
type Catalog struct {
	configPath string
	logger     *slog.Logger
	snapshot   atomic.Pointer[snapshot]
}

// snapshot keeps both the mapping and the insertion order: first-match-wins
// lookup semantics depend on catalog order being deterministic.
type snapshot struct {
	entries map[string]FormDefinition
	order   []string
}

// templateLoadConcurrency bounds parallel template file reads during a load.
const templateLoadConcurrency = 8

// Load builds a catalog from the YAML document at configPath. A missing or
// malformed document is fatal; a missing template body for a single form is
// not — the entry is registered with empty content so unrelated forms stay
// available.
func Load(configPath string, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{configPath: configPath, logger: logger}
	snap, err := c.build()
	if err != nil {
		return nil, err
	}
	c.snapshot.Store(snap)
	return c, nil
}

// Reload rebuilds the mapping from the same config path and swaps it in
// atomically. On failure the previous catalog stays in place.
func (c *Catalog) Reload() error {
	snap, err := c.build()
	if err != nil {
		return err
	}
	c.snapshot.Store(snap)
	return nil
}

// Lookup resolves a requested identifier, either a full "<domain>/<url>" key
// or a bare form URL matched by key suffix. First match in catalog order wins.
func (c *Catalog) Lookup(id string) (FormDefinition, bool) {
	snap := c.snapshot.Load()
	for _, key := range snap.order {
		if key == id || strings.HasSuffix(key, "/"+id) {
			return snap.entries[key], true
		}
	}
	return FormDefinition{}, false
}

// Len reports how many forms are registered.
func (c *Catalog) Len() int {
	return len(c.snapshot.Load().order)
}

func (c *Catalog) build() (*snapshot, error) {
	cfg, err := readConfig(c.configPath)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{entries: make(map[string]FormDefinition)}
	baseDir := filepath.Dir(c.configPath)

	for _, domain := range cfg.Domains {
		for _, form := range domain.Forms {
			key := domain.Name + "/" + form.URL
			if _, dup := snap.entries[key]; dup {
				return nil, fmt.Errorf("duplicate form key %q in catalog", key)
			}
			snap.entries[key] = FormDefinition{
				Key:        key,
				Domain:     domain.Name,
				URL:        form.URL,
				Version:    domain.Version,
				RenderType: RenderType(form.Type),
			}
			snap.order = append(snap.order, key)
		}
	}

	c.loadTemplates(snap, cfg, baseDir)
	return snap, nil
}

// loadTemplates fills in template bodies concurrently. Read failures are
// logged and leave the entry's body empty rather than failing the load.
func (c *Catalog) loadTemplates(snap *snapshot, cfg *configFile, baseDir string) {
	type loaded struct {
		key  string
		body string
	}

	results := make([]loaded, 0, len(snap.order))
	var g errgroup.Group
	g.SetLimit(templateLoadConcurrency)

	ch := make(chan loaded, len(snap.order))
	for _, domain := range cfg.Domains {
		for _, form := range domain.Forms {
			key := domain.Name + "/" + form.URL
			htmlPath := filepath.Join(baseDir, form.Path, "form.html")
			g.Go(func() error {
				body, err := os.ReadFile(htmlPath)
				if err != nil {
					c.logger.Error("failed to load form template",
						"form", key,
						"path", htmlPath,
						"error", err.Error(),
					)
					ch <- loaded{key: key}
					return nil
				}
				ch <- loaded{key: key, body: string(body)}
				return nil
			})
		}
	}
	_ = g.Wait()
	close(ch)
	for r := range ch {
		results = append(results, r)
	}

	for _, r := range results {
		def := snap.entries[r.key]
		def.TemplateBody = r.body
		snap.entries[r.key] = def
	}
}
