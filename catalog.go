package synode

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/internal/logging"
	"github.com/aixgo-dev/synode/internal/operator"
)

// Catalog holds loaded graph documents under their names, aliases and
// references. It resolves SYNOD operator paths for engines and workers.
type Catalog struct {
	loader *Loader
	base   string
	log    *slog.Logger

	mu   sync.RWMutex
	docs map[string]*graph.Definition
}

// NewCatalog creates a catalog reading documents below base.
func NewCatalog(loader *Loader, base string, log *slog.Logger) *Catalog {
	if loader == nil {
		loader = NewLoader(nil)
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Catalog{loader: loader, base: base, log: log, docs: make(map[string]*graph.Definition)}
}

// Load reads the document ref refers to and registers it under ref, its
// name and alias (when not empty).
func (c *Catalog) Load(ref, alias string) (*graph.Definition, error) {
	def, err := c.loader.Load(ResolvePath(c.base, ref))
	if err != nil {
		return nil, err
	}
	c.Add(def, ref, alias)
	return def, nil
}

// Add registers def under its name and the given keys.
func (c *Catalog) Add(def *graph.Definition, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[def.Name] = def
	for _, k := range keys {
		if k != "" {
			c.docs[k] = def
		}
	}
}

// ImportDir loads every synod.<name>.yaml file below dir. Documents that
// fail to load are logged and skipped. It returns the number loaded.
func (c *Catalog) ImportDir(dir string) (int, error) {
	n := 0
	err := fs.WalkDir(os.DirFS(dir), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := refName(path)
		if d.IsDir() || name == "" {
			return nil
		}
		def, err := c.loader.Load(filepath.Join(dir, path))
		if err != nil {
			c.log.Warn("skipping graph document", "path", path, "err", err)
			return nil
		}
		c.Add(def, name)
		n++
		return nil
	})
	return n, err
}

// Definition returns the document registered under ref, loading it on first use.
func (c *Catalog) Definition(ref string) (*graph.Definition, error) {
	c.mu.RLock()
	def, ok := c.docs[ref]
	c.mu.RUnlock()
	if ok {
		return def, nil
	}
	def, err := c.Load(ref, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownGraph, ref, err)
	}
	return def, nil
}

// Names lists the registered keys.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.docs))
	for k := range c.docs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Summon builds an engine for the document registered under ref. Nested
// graphs resolve through the catalog.
func (c *Catalog) Summon(ref string, opts ...Option) (*Engine, error) {
	def, err := c.Definition(ref)
	if err != nil {
		return nil, err
	}
	return New(def, append([]Option{WithGraphLoader(c), WithLogger(c.log)}, opts...)...)
}

// Launcher returns a graph launcher that summons a fresh engine for every
// launch. Remote workers use it to run SYNOD tasks.
func (c *Catalog) Launcher(opts ...Option) operator.Launcher {
	return catalogLauncher{c: c, opts: opts}
}

type catalogLauncher struct {
	c    *Catalog
	opts []Option
}

func (l catalogLauncher) LaunchGraph(ctx context.Context, path, trigger string, input any, session map[string]any) (any, error) {
	e, err := l.c.Summon(path, l.opts...)
	if err != nil {
		return nil, err
	}
	return e.Launch(ctx, trigger, input, session)
}
