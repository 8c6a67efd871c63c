package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fastsocket/fastsocket/internal/appmodel"
	"github.com/rs/zerolog"
)

func TestNewJSONFileRegistersBuiltinDevApp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	cat, err := NewJSONFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cat.Find("fastsocket"); !ok {
		t.Errorf("expected the built-in development app to be registered")
	}
}

func TestAddUpdateRemoveMaintainIndices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	cat, err := NewJSONFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	app, _ := appmodel.New("app1", "key1", "secret1", "App One", "host", "/", 10, 0)
	if err := cat.Add(app); err != nil {
		t.Fatalf("unexpected error adding app: %v", err)
	}
	if _, ok := cat.FindByKey("key1"); !ok {
		t.Errorf("expected to find app by key after Add")
	}
	if _, ok := cat.FindBySecret("secret1"); !ok {
		t.Errorf("expected to find app by secret after Add")
	}

	updated, _ := appmodel.New("app1", "key2", "secret1", "App One", "host", "/", 10, 0)
	if err := cat.Update(updated); err != nil {
		t.Fatalf("unexpected error updating app: %v", err)
	}
	if _, ok := cat.FindByKey("key1"); ok {
		t.Errorf("expected the stale key index to be removed after Update")
	}
	if _, ok := cat.FindByKey("key2"); !ok {
		t.Errorf("expected to find app by its new key after Update")
	}

	if ok := cat.Remove("app1"); !ok {
		t.Errorf("expected Remove to report true for an existing app")
	}
	if _, ok := cat.Find("app1"); ok {
		t.Errorf("expected app1 to be gone after Remove")
	}
	if ok := cat.Remove("app1"); ok {
		t.Errorf("expected a second Remove of the same id to report false")
	}
}

func TestSaveIsNoOpWhenNotDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	cat, err := NewJSONFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cat.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected no file to be written when the catalog was never mutated")
	}
}

func TestSavePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	cat, err := NewJSONFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	app, _ := appmodel.New("app1", "key1", "secret1", "App One", "host", "/", 10, 0)
	cat.Add(app)
	if err := cat.Save(); err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected catalog file to exist after Save: %v", err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unexpected error unmarshaling persisted records: %v", err)
	}

	reloaded, err := NewJSONFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error reloading catalog: %v", err)
	}
	if _, ok := reloaded.Find("app1"); !ok {
		t.Errorf("expected app1 to survive a save/reload round trip")
	}
}

func TestIncrementDecrementConnectionCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	cat, err := NewJSONFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	app, _ := appmodel.New("app1", "key1", "secret1", "App One", "host", "/", 10, 0)
	cat.Add(app)

	cat.IncrementConnectionCount("app1")
	cat.IncrementConnectionCount("app1")
	cat.DecrementConnectionCount("app1")

	got, _ := cat.Find("app1")
	if got.ConnectionCount != 1 {
		t.Errorf("ConnectionCount = %d, want 1", got.ConnectionCount)
	}

	// Mutating an unknown id must not panic.
	cat.IncrementConnectionCount("does-not-exist")
	cat.DecrementConnectionCount("does-not-exist")
}
