package resource_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/post"
	"github.com/mirrorworlds/worldmesh/resource"
	"github.com/mirrorworlds/worldmesh/resource/localengine"
)

func init() {
	go func() {
		for {
			post.Tick()
			time.Sleep(time.Millisecond)
		}
	}()
}

func newTestAdapter(t *testing.T) (*resource.Adapter, *localengine.LocalEngine, *config.ServerConfig) {
	cfg := &config.ServerConfig{
		ServerName:      "worlds",
		StorageRoot:     t.TempDir(),
		WorldsDirectory: t.TempDir(),
		FallbackWorld:   "world",
	}
	engine, err := localengine.New(cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return resource.NewAdapter(engine, cfg), engine, cfg
}

func loadSync(t *testing.T, a *resource.Adapter, name string, storagePath string) resource.Resource {
	t.Helper()
	done := make(chan resource.Resource, 1)
	a.Load(name, storagePath, resource.CreateParams{Environment: "normal"}, func(res resource.Resource) {
		done <- res
	})
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("load never completed")
		return nil
	}
}

func TestCreateRejectsUnsafeNames(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	for _, name := range []string{"../evil", "a/b", "", "..", "a\\b"} {
		if res := a.Create(name, resource.CreateParams{}); res != nil {
			t.Errorf("creating %q should be refused", name)
		}
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	first := a.Create("wm_cafebabe", resource.CreateParams{Environment: "normal"})
	if first == nil {
		t.Fatalf("create failed")
	}
	second := a.Create("wm_cafebabe", resource.CreateParams{Environment: "normal"})
	if second != first {
		t.Fatalf("creating a live world should return the existing resource")
	}
}

func TestLoadMaterializesFromArchive(t *testing.T) {
	a, _, cfg := newTestAdapter(t)

	// the world data lives only in the owner's archive subtree
	archived := filepath.Join(cfg.StorageRoot, "Alice", "wm_cafebabe")
	if err := os.MkdirAll(archived, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(archived, "world.dat"), []byte("normal"), 0644); err != nil {
		t.Fatal(err)
	}

	res := loadSync(t, a, "wm_cafebabe", "Alice")
	if res == nil {
		t.Fatalf("load failed")
	}

	materialized := filepath.Join(cfg.WorldsDirectory, "wm_cafebabe", "world.dat")
	if _, err := os.Stat(materialized); err != nil {
		t.Errorf("archive should be materialized into the worlds directory: %v", err)
	}
}

func TestLoadIgnoresUnsafeStoragePath(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	// the unsafe subpath is dropped; with no data anywhere the engine
	// creates the world fresh
	res := loadSync(t, a, "wm_cafebabe", "../evil")
	if res == nil {
		t.Fatalf("load should degrade to a fresh world, not fail")
	}
}

func TestLoadRejectsUnsafeName(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	if res := loadSync(t, a, "../evil", ""); res != nil {
		t.Fatalf("loading an unsafe name should fail")
	}
}

func TestDeleteRemovesPrimaryAndArchive(t *testing.T) {
	a, engine, cfg := newTestAdapter(t)

	if res := a.Create("wm_cafebabe", resource.CreateParams{Environment: "normal"}); res == nil {
		t.Fatalf("create failed")
	}
	archived := filepath.Join(cfg.StorageRoot, "Alice", "wm_cafebabe")
	if err := os.MkdirAll(archived, 0755); err != nil {
		t.Fatal(err)
	}

	done := make(chan bool, 1)
	a.Delete("wm_cafebabe", "Alice", func(ok bool) { done <- ok })
	if ok := <-done; !ok {
		t.Fatalf("delete failed")
	}

	if engine.GetWorld("wm_cafebabe") != nil {
		t.Errorf("world should be unloaded")
	}
	if _, err := os.Stat(filepath.Join(cfg.WorldsDirectory, "wm_cafebabe")); !os.IsNotExist(err) {
		t.Errorf("primary directory should be gone")
	}
	if _, err := os.Stat(archived); !os.IsNotExist(err) {
		t.Errorf("archive directory should be gone")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	a, _, cfg := newTestAdapter(t)

	if res := a.Create("wm_cafebabe", resource.CreateParams{Environment: "normal"}); res == nil {
		t.Fatalf("create failed")
	}

	done := make(chan bool, 1)
	a.Archive("wm_cafebabe", "Alice", func(ok bool) { done <- ok })
	if ok := <-done; !ok {
		t.Fatalf("archive failed")
	}

	archived := filepath.Join(cfg.StorageRoot, "Alice", "wm_cafebabe", "world.dat")
	if _, err := os.Stat(archived); err != nil {
		t.Errorf("archived world data missing: %v", err)
	}
}
