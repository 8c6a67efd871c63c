// Package catalog implements the application catalog: lookup of Apps
// by id/key/secret, with a JSON-file-backed persistence layer. The
// interface is deliberately small so a different backend (database,
// remote config service) could implement it without touching callers.
package catalog

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/fastsocket/fastsocket/internal/appmodel"
	"github.com/rs/zerolog"
)

// Catalog is the polymorphic interface every backend satisfies.
type Catalog interface {
	Find(id string) (*appmodel.App, bool)
	FindByKey(key string) (*appmodel.App, bool)
	FindBySecret(secret string) (*appmodel.App, bool)
	Add(app *appmodel.App) error
	Update(app *appmodel.App) error
	Remove(id string) bool
	Save() error
	IncrementConnectionCount(id string)
	DecrementConnectionCount(id string)
}

// record is the on-disk JSON shape of an App: a flattened struct with
// exported lower-snake field names matching original_source's Rust
// serde output, so existing catalog files produced by the reference
// implementation (original_source/src/app.rs) remain loadable.
type record struct {
	ID              string `json:"id"`
	Key             string `json:"key"`
	Secret          string `json:"secret"`
	Name            string `json:"name"`
	Host            string `json:"host"`
	Path            string `json:"path"`
	Capacity        int    `json:"capacity"`
	ConnectionCount int    `json:"connection_count"`
	Flags           uint8  `json:"flags"`
}

func toRecord(a *appmodel.App) record {
	return record{
		ID:              a.ID,
		Key:             a.Key,
		Secret:          a.Secret,
		Name:            a.Name,
		Host:            a.Host,
		Path:            a.Path,
		Capacity:        a.Capacity,
		ConnectionCount: a.ConnectionCount,
		Flags:           uint8(a.Flags),
	}
}

func fromRecord(r record) *appmodel.App {
	return &appmodel.App{
		ID:              r.ID,
		Key:             r.Key,
		Secret:          r.Secret,
		Name:            r.Name,
		Host:            r.Host,
		Path:            r.Path,
		Capacity:        r.Capacity,
		ConnectionCount: r.ConnectionCount,
		Flags:           appmodel.Flag(r.Flags),
	}
}

// builtinDevApp is unconditionally registered after load (spec.md
// §4.D), matching every test fixture in the pack that dials
// ws://host/app/fastsocket without provisioning a catalog file first.
var builtinDevApp = &appmodel.App{
	ID:       "fastsocket",
	Key:      "fastsocket",
	Secret:   "secret",
	Name:     "FastSocket Development",
	Host:     "localhost",
	Path:     "/",
	Capacity: 100,
}

// JSONFile is the JSON-file-backed Catalog implementation.
type JSONFile struct {
	mu         sync.RWMutex
	path       string
	apps       map[string]*appmodel.App
	byKey      map[string]string
	bySecret   map[string]string
	dirty      bool
	logger     zerolog.Logger
}

// NewJSONFile loads apps from path if it exists (a JSON array of
// records), or starts empty otherwise, then unconditionally registers
// the built-in "fastsocket" development app.
func NewJSONFile(path string, logger zerolog.Logger) (*JSONFile, error) {
	c := &JSONFile{
		path:     path,
		apps:     make(map[string]*appmodel.App),
		byKey:    make(map[string]string),
		bySecret: make(map[string]string),
		logger:   logger.With().Str("component", "catalog").Logger(),
	}

	if data, err := os.ReadFile(path); err == nil {
		var records []record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		for _, r := range records {
			app := fromRecord(r)
			c.index(app)
		}
		c.logger.Info().Int("count", len(records)).Str("path", path).Msg("loaded application catalog")
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	dev := builtinDevApp.Clone()
	c.index(dev)

	return c, nil
}

// index registers app in the primary map and both secondary indices.
// Caller must hold c.mu for writing.
func (c *JSONFile) index(app *appmodel.App) {
	c.apps[app.ID] = app
	c.byKey[app.Key] = app.ID
	c.bySecret[app.Secret] = app.ID
}

func (c *JSONFile) Find(id string) (*appmodel.App, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	app, ok := c.apps[id]
	return app, ok
}

func (c *JSONFile) FindByKey(key string) (*appmodel.App, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	app, ok := c.apps[id]
	return app, ok
}

func (c *JSONFile) FindBySecret(secret string) (*appmodel.App, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.bySecret[secret]
	if !ok {
		return nil, false
	}
	app, ok := c.apps[id]
	return app, ok
}

// Add registers a new app, wiring both secondary indices and marking
// the catalog dirty.
func (c *JSONFile) Add(app *appmodel.App) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index(app)
	c.dirty = true
	return nil
}

// Update replaces the record for app.ID, first removing the old
// record's secondary entries so a changed key/secret doesn't leave a
// stale index pointing at the new record under the old value.
func (c *JSONFile) Update(app *appmodel.App) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.apps[app.ID]; ok {
		delete(c.byKey, old.Key)
		delete(c.bySecret, old.Secret)
	}
	c.index(app)
	c.dirty = true
	return nil
}

// Remove deletes the app with the given id, reporting whether it was
// present.
func (c *JSONFile) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	app, ok := c.apps[id]
	if !ok {
		return false
	}
	delete(c.apps, id)
	delete(c.byKey, app.Key)
	delete(c.bySecret, app.Secret)
	c.dirty = true
	return true
}

// Save writes a pretty-printed JSON array of every app to disk if the
// catalog is dirty; otherwise it's a no-op.
func (c *JSONFile) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *JSONFile) saveLocked() error {
	if !c.dirty {
		return nil
	}
	records := make([]record, 0, len(c.apps))
	for _, app := range c.apps {
		records = append(records, toRecord(app))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Close flushes a dirty catalog to disk on teardown. Per spec.md §7,
// persistence is best-effort: failures are logged, never propagated to
// the protocol surface.
func (c *JSONFile) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return
	}
	if err := c.saveLocked(); err != nil {
		c.logger.Error().Err(err).Msg("failed to flush application catalog on shutdown")
	}
}

// IncrementConnectionCount and DecrementConnectionCount mutate an app's
// gauge under the catalog's own lock, since ConnectionCount is shared
// mutable state touched by every connection open/close.

func (c *JSONFile) IncrementConnectionCount(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if app, ok := c.apps[id]; ok {
		app.IncrementConnectionCount()
	}
}

func (c *JSONFile) DecrementConnectionCount(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if app, ok := c.apps[id]; ok {
		app.DecrementConnectionCount()
	}
}
