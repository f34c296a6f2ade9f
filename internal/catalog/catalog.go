// Package catalog exposes the read-only list of central-object templates.
// Each subdirectory of the object directory names one template and may carry
// a DefaultConfig.json with the template's initial transform.
package catalog

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/pwalder/cospace/backend/internal/model/space"
)

// Catalog lists the object templates available for new sessions.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	objects []string
}

// New scans dir (creating it if missing) and returns the catalog.
func New(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	c := &Catalog{dir: dir}
	if err := c.reload(); err != nil {
		return nil, err
	}
	log.Printf("[catalog] loaded %d objects from %s", len(c.Objects()), dir)
	return c, nil
}

// Objects returns the available template names.
func (c *Catalog) Objects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.objects...)
}

// DefaultConfig returns the template's initial transform with the requested
// object type stamped in. A missing or unreadable DefaultConfig.json yields
// a zeroed config carrying just the type, which clients tolerate.
func (c *Catalog) DefaultConfig(objectType string) space.ObjectConfig {
	cfg := space.ObjectConfig{ObjectType: objectType}

	data, err := os.ReadFile(filepath.Join(c.dir, objectType, "DefaultConfig.json"))
	if err != nil {
		log.Printf("[catalog] no default config for %q: %v", objectType, err)
		return cfg
	}

	var wrapper struct {
		ObjectConfig space.ObjectConfig `json:"objectConfig"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		log.Printf("[catalog] malformed default config for %q: %v", objectType, err)
		return cfg
	}

	cfg.Scale = wrapper.ObjectConfig.Scale
	cfg.Rotation = wrapper.ObjectConfig.Rotation
	return cfg
}

// Has reports whether objectType is a known template.
func (c *Catalog) Has(objectType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, o := range c.objects {
		if o == objectType {
			return true
		}
	}
	return false
}

// Watch refreshes the template list whenever the object directory changes,
// until ctx is cancelled.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.reload(); err != nil {
					log.Printf("[catalog] reload failed: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[catalog] watch error: %v", err)
			}
		}
	}()

	return nil
}

func (c *Catalog) reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	var objects []string
	for _, entry := range entries {
		if entry.IsDir() {
			objects = append(objects, entry.Name())
		}
	}
	sort.Strings(objects)

	c.mu.Lock()
	c.objects = objects
	c.mu.Unlock()
	return nil
}
