package media

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jhowland/camsift/internal/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	return state.Load(filepath.Join(t.TempDir(), "state.json"))
}

// writeTree creates files under root; each entry is a relative path.
func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestDiscover_EmptyTree(t *testing.T) {
	root := t.TempDir()
	d := NewDiscovererWithSeed(newTestStore(t), 1)

	items, err := d.Discover(root, Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Discover() returned %d items from an empty tree, want 0", len(items))
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	d := NewDiscovererWithSeed(newTestStore(t), 1)

	if _, err := d.Discover(filepath.Join(t.TempDir(), "nope"), Options{}); err == nil {
		t.Error("Discover() on a missing root should error")
	}
}

func TestDiscover_IgnoresUnknownExtensions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/CAM-001-X.jpg", "a/notes.txt", "a/index.html")
	d := NewDiscovererWithSeed(newTestStore(t), 1)

	items, err := d.Discover(root, Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "001" {
		t.Errorf("Discover() = %v, want just id 001", ids(items))
	}
}

func TestDiscover_SkipsProcessed(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/CAM-001-X.jpg", "a/CAM-002-X.jpg")

	store := newTestStore(t)
	store.Claim("001")
	store.MarkProcessed("001")

	d := NewDiscovererWithSeed(store, 1)
	items, err := d.Discover(root, Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "002" {
		t.Errorf("Discover() = %v, want just id 002", ids(items))
	}
}

func TestDiscover_RecoveredComeFirst(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"a/CAM-001-X.jpg",
		"a/CAM-002-X.jpg",
		"b/CAM-003-X.jpg",
	)

	store := newTestStore(t)
	store.Claim("003") // interrupted by a previous run

	d := NewDiscovererWithSeed(store, 7)
	items, err := d.Discover(root, Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Discover() returned %d items, want 3", len(items))
	}
	if items[0].ID != "003" {
		t.Errorf("first item = %q, want the recovered id 003 (got order %v)", items[0].ID, ids(items))
	}
}

func TestDiscover_DeduplicatesByID(t *testing.T) {
	root := t.TempDir()
	// Same capture id exported into two directories.
	writeTree(t, root, "a/CAM-001-X.jpg", "b/CAM-001-Y.jpg")

	d := NewDiscovererWithSeed(newTestStore(t), 1)
	items, err := d.Discover(root, Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(items) != 1 {
		t.Errorf("Discover() = %v, want a single item for the shared id", ids(items))
	}
}

func TestDiscover_TotalLimit(t *testing.T) {
	root := t.TempDir()
	var paths []string
	for i := 0; i < 10; i++ {
		paths = append(paths, fmt.Sprintf("a/CAM-%03d-X.jpg", i))
	}
	writeTree(t, root, paths...)

	d := NewDiscovererWithSeed(newTestStore(t), 1)
	items, err := d.Discover(root, Options{TotalLimit: 4})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(items) != 4 {
		t.Errorf("Discover() returned %d items, want 4", len(items))
	}
}

func TestDiscover_PerDirCapExactCount(t *testing.T) {
	root := t.TempDir()
	var paths []string
	for i := 0; i < 8; i++ {
		paths = append(paths, fmt.Sprintf("a/CAM-%03d-X.jpg", i))
	}
	writeTree(t, root, paths...)

	store := newTestStore(t)
	d := NewDiscovererWithSeed(store, 1)

	// Each allowed draw counts once against the cap, so a cap of 3 must
	// yield exactly 3, not fewer.
	items, err := d.Discover(root, Options{PerDirCap: 3})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(items) != 3 {
		t.Errorf("Discover() drew %d items under a cap of 3, want exactly 3", len(items))
	}
	if got := store.DirUsage(filepath.Join(root, "a")); got != 3 {
		t.Errorf("DirUsage = %d after the run, want 3", got)
	}
}

func TestDiscover_PerDirCapAcrossRuns(t *testing.T) {
	root := t.TempDir()
	var paths []string
	for i := 0; i < 6; i++ {
		paths = append(paths, fmt.Sprintf("a/CAM-%03d-X.jpg", i))
	}
	writeTree(t, root, paths...)

	store := newTestStore(t)
	d := NewDiscovererWithSeed(store, 1)

	first, err := d.Discover(root, Options{PerDirCap: 2})
	if err != nil {
		t.Fatalf("first Discover() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first run drew %d items, want 2", len(first))
	}

	// The cap counts draws across runs through the persisted usage.
	second, err := d.Discover(root, Options{PerDirCap: 2})
	if err != nil {
		t.Fatalf("second Discover() error = %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second run drew %d items from a capped directory, want 0", len(second))
	}

	// Raising the cap frees more draws.
	third, err := d.Discover(root, Options{PerDirCap: 4})
	if err != nil {
		t.Fatalf("third Discover() error = %v", err)
	}
	if len(third) != 2 {
		t.Errorf("third run drew %d items, want 2 more under the raised cap", len(third))
	}
}

func TestDiscover_RecoveredDoNotConsumeDirCap(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/CAM-001-X.jpg", "a/CAM-002-X.jpg")

	store := newTestStore(t)
	store.Claim("001")

	d := NewDiscovererWithSeed(store, 1)
	items, err := d.Discover(root, Options{PerDirCap: 1})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	// The recovered item rides along for free; the cap still allows one
	// fresh draw.
	if len(items) != 2 {
		t.Errorf("Discover() = %v, want the recovered item plus one fresh draw", ids(items))
	}
}
