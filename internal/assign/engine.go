// Package assign places accepted media into the nearest category by
// embedding cosine distance, after keyword gating narrows the candidates.
package assign

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jhowland/camsift/internal/catalog"
	"github.com/jhowland/camsift/internal/classify"
	"github.com/jhowland/camsift/internal/llm"
	"github.com/jhowland/camsift/internal/sink"
)

// Assignment is one item-to-category decision, appended to the assignments
// log.
type Assignment struct {
	ItemID     string    `json:"item_id"`
	Path       string    `json:"path"`
	Category   string    `json:"category"`
	Distance   float64   `json:"distance,omitempty"`
	Fallback   bool      `json:"fallback,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Stats summarizes an assignment pass.
type Stats struct {
	Considered int
	Assigned   int
	Fallback   int
	Skipped    int
	Errors     int
}

// Engine assigns classified items to catalog categories.
type Engine struct {
	catalog  *catalog.Catalog
	embedder llm.Embedder
	outDir   string
}

// NewEngine creates an Engine. The catalog must already have embeddings
// attached.
func NewEngine(cat *catalog.Catalog, embedder llm.Embedder, outDir string) *Engine {
	return &Engine{catalog: cat, embedder: embedder, outDir: outDir}
}

// Assign decides the category for one record. Returns nil for records that
// are not eligible (label not accepted). An embedding failure is terminal
// for the item: the error is returned and the item stays unassigned.
func (e *Engine) Assign(ctx context.Context, rec sink.Record) (*Assignment, error) {
	if classify.Label(rec.Label) != classify.LabelPositive {
		return nil, nil
	}

	// Gate filtering: a prototype whose keywords are entirely absent from
	// the description is excluded outright. Exclusion is by omission from
	// the candidate set, never by a sentinel distance value.
	var survivors []*catalog.Prototype
	for i := range e.catalog.Prototypes {
		proto := &e.catalog.Prototypes[i]
		if proto.Category.Fallback {
			continue
		}
		if len(proto.Embedding) == 0 {
			continue
		}
		if proto.GatePasses(rec.Description) {
			survivors = append(survivors, proto)
		}
	}

	fallback := e.catalog.Fallback()
	if len(survivors) == 0 {
		return &Assignment{
			ItemID:     rec.ItemID,
			Path:       rec.Path,
			Category:   fallback.Category.Name,
			Fallback:   true,
			AssignedAt: time.Now(),
		}, nil
	}

	vec, err := e.embedder.Embed(ctx, rec.Description)
	if err != nil {
		return nil, fmt.Errorf("embed description for %s: %w", rec.ItemID, err)
	}

	best, tie := nearest(vec, survivors)
	if best == nil || tie {
		return &Assignment{
			ItemID:     rec.ItemID,
			Path:       rec.Path,
			Category:   fallback.Category.Name,
			Fallback:   true,
			AssignedAt: time.Now(),
		}, nil
	}

	return &Assignment{
		ItemID:     rec.ItemID,
		Path:       rec.Path,
		Category:   best.Category.Name,
		Distance:   cosineDistance(vec, best.Embedding),
		AssignedAt: time.Now(),
	}, nil
}

// nearest returns the survivor with minimum cosine distance, and whether
// the minimum was tied between distinct categories.
func nearest(vec []float32, survivors []*catalog.Prototype) (*catalog.Prototype, bool) {
	var best *catalog.Prototype
	bestDist := math.Inf(1)
	tie := false
	for _, proto := range survivors {
		d := cosineDistance(vec, proto.Embedding)
		switch {
		case d < bestDist:
			best, bestDist, tie = proto, d, false
		case d == bestDist:
			tie = true
		}
	}
	return best, tie
}

// cosineDistance is 1 - cosine similarity. Mismatched or zero-magnitude
// vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// Place copies the assigned item into its category directory. Idempotent:
// an existing destination file is left untouched.
func (e *Engine) Place(a *Assignment) error {
	dir := filepath.Join(e.outDir, catalog.Slugify(a.Category))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create category dir: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(a.Path))
	if _, err := os.Stat(dest); err == nil {
		a.OutputPath = dest
		return nil
	}
	if err := copyFile(a.Path, dest); err != nil {
		return err
	}
	a.OutputPath = dest
	return nil
}

// Run assigns every eligible record, places the files, and appends each
// decision to the assignments log. Item failures are isolated.
func (e *Engine) Run(ctx context.Context, records []sink.Record, logPath string) (Stats, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Stats{}, fmt.Errorf("open assignments log: %w", err)
	}
	defer logFile.Close()

	var stats Stats
	seen := make(map[string]struct{})

	for _, rec := range records {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if _, dup := seen[rec.ItemID]; dup {
			continue
		}
		seen[rec.ItemID] = struct{}{}
		stats.Considered++

		assignment, err := e.Assign(ctx, rec)
		if err != nil {
			slog.Warn("assignment failed", "item", rec.ItemID, "error", err)
			stats.Errors++
			continue
		}
		if assignment == nil {
			stats.Skipped++
			continue
		}

		if err := e.Place(assignment); err != nil {
			slog.Warn("placement failed", "item", rec.ItemID, "error", err)
		}

		line, err := json.Marshal(assignment)
		if err != nil {
			return stats, fmt.Errorf("marshal assignment: %w", err)
		}
		if _, err := logFile.Write(append(line, '\n')); err != nil {
			return stats, fmt.Errorf("append assignment: %w", err)
		}

		if assignment.Fallback {
			stats.Fallback++
		}
		stats.Assigned++
		slog.Info("assigned", "item", rec.ItemID, "category", assignment.Category, "fallback", assignment.Fallback)
	}

	return stats, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}
