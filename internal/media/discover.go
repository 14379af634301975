package media

import (
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jhowland/camsift/internal/state"
)

// Options bound a discovery pass.
type Options struct {
	// TotalLimit caps how many items one run returns. 0 means unlimited.
	TotalLimit int
	// PerDirCap caps how many items a single directory may contribute
	// across all runs. 0 means unlimited.
	PerDirCap int
}

// Discoverer walks a media tree and selects candidates for classification.
// Enumeration order is shuffled so repeated bounded runs do not keep
// favoring lexicographically early paths.
type Discoverer struct {
	store *state.Store
	rng   *rand.Rand
}

// NewDiscoverer creates a Discoverer backed by the given state store.
func NewDiscoverer(store *state.Store) *Discoverer {
	return &Discoverer{
		store: store,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewDiscovererWithSeed creates a Discoverer with deterministic shuffling
// (for tests).
func NewDiscovererWithSeed(store *state.Store, seed int64) *Discoverer {
	return &Discoverer{
		store: store,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Discover returns this run's candidate items. Items selected by an earlier
// interrupted run come first, so crashed work is retried before new work
// starts; they do not count against directory caps a second time. An empty
// tree yields an empty slice and no error.
func (d *Discoverer) Discover(root string, opts Options) ([]Item, error) {
	byDir, err := d.collect(root)
	if err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	d.rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
	for _, dir := range dirs {
		files := byDir[dir]
		d.rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
	}

	pending := make(map[string]struct{})
	for _, id := range d.store.PendingSelections() {
		pending[id] = struct{}{}
	}

	var recovered []Item
	var fresh []Item
	seen := make(map[string]struct{})

	// First pass: re-find files for interrupted selections.
	if len(pending) > 0 {
		for _, dir := range dirs {
			for _, it := range byDir[dir] {
				if _, ok := pending[it.ID]; !ok {
					continue
				}
				if _, dup := seen[it.ID]; dup {
					continue
				}
				seen[it.ID] = struct{}{}
				recovered = append(recovered, it)
			}
		}
		slog.Info("recovered interrupted selections", "count", len(recovered))
	}

	limit := opts.TotalLimit
	for _, dir := range dirs {
		for _, it := range byDir[dir] {
			if limit > 0 && len(recovered)+len(fresh) >= limit {
				return append(recovered, fresh...), nil
			}
			// AddDirUsage below already counts this run's draws, so the
			// persisted counter alone is the cap check.
			if opts.PerDirCap > 0 && d.store.DirUsage(dir) >= opts.PerDirCap {
				break
			}
			if d.store.Skip(it.ID) {
				continue
			}
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			fresh = append(fresh, it)
			d.store.AddDirUsage(dir)
		}
	}

	return append(recovered, fresh...), nil
}

// collect enumerates media files under root grouped by directory.
func (d *Discoverer) collect(root string) (map[string][]Item, error) {
	byDir := make(map[string][]Item)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return err
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		item, ok := NewItem(path)
		if !ok {
			return nil
		}
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return byDir, nil
}
