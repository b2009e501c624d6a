package resource

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "level.dat"), "level")
	writeFile(t, filepath.Join(src, "region", "r.0.0.mca"), "region")
	writeFile(t, filepath.Join(src, "data", "maps", "map_0.dat"), "map")

	dst := filepath.Join(t.TempDir(), "copy")
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}

	if got := readFile(t, filepath.Join(dst, "level.dat")); got != "level" {
		t.Errorf("level.dat = %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "region", "r.0.0.mca")); got != "region" {
		t.Errorf("region file = %q", got)
	}
	if got := readFile(t, filepath.Join(dst, "data", "maps", "map_0.dat")); got != "map" {
		t.Errorf("nested file = %q", got)
	}
}

func TestCopyTreeMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "copy")
	if err := CopyTree(filepath.Join(t.TempDir(), "nope"), dst); err == nil {
		t.Fatalf("copying a missing tree should fail")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("failed copy should not leave a partial destination")
	}
}

func TestRemoveTree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "doomed")
	writeFile(t, filepath.Join(dir, "level.dat"), "level")
	writeFile(t, filepath.Join(dir, "region", "r.0.0.mca"), "region")

	if err := RemoveTree(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("tree should be gone")
	}
}
