package assign

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jhowland/camsift/internal/catalog"
	"github.com/jhowland/camsift/internal/sink"
)

// fakeEmbedder returns a scripted vector for every text.
type fakeEmbedder struct {
	vec  []float32
	err  error
	dims int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dims }

const testCatalogYAML = `
- name: pets
  description: A dog or cat.
  keywords: [dog, cat]
- name: delivery
  description: A package arrives.
  keywords: [package]
- name: open
  description: Ungated category.
`

func testCatalog(t *testing.T, embeddings [][]float32) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	if err := os.WriteFile(path, []byte(testCatalogYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if embeddings != nil {
		if err := cat.AttachEmbeddings(embeddings); err != nil {
			t.Fatal(err)
		}
	}
	return cat
}

func positiveRecord(id, description string) sink.Record {
	return sink.Record{
		ItemID:      id,
		Path:        "/cams/" + id + ".jpg",
		Label:       "positive",
		Description: description,
	}
}

func TestAssign_SkipsNonPositive(t *testing.T) {
	cat := testCatalog(t, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	e := NewEngine(cat, &fakeEmbedder{vec: []float32{1, 0}}, t.TempDir())

	for _, label := range []string{"negative", "ambiguous", "error", "duplicate", "filtered"} {
		rec := positiveRecord("x", "a dog")
		rec.Label = label
		a, err := e.Assign(context.Background(), rec)
		if err != nil {
			t.Errorf("Assign(label=%s) error = %v", label, err)
		}
		if a != nil {
			t.Errorf("Assign(label=%s) = %v, want nil", label, a)
		}
	}
}

func TestAssign_NearestSurvivorWins(t *testing.T) {
	cat := testCatalog(t, [][]float32{{1, 0}, {0, 1}, {0.7, 0.7}})
	// Description mentions both gated keywords, so all three compete.
	e := NewEngine(cat, &fakeEmbedder{vec: []float32{0.9, 0.1}}, t.TempDir())

	a, err := e.Assign(context.Background(), positiveRecord("001", "a dog sniffs a package"))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if a.Category != "pets" {
		t.Errorf("Category = %q, want pets (nearest vector)", a.Category)
	}
	if a.Fallback {
		t.Error("a nearest-distance win must not be marked fallback")
	}
	if a.Distance <= 0 || a.Distance >= 1 {
		t.Errorf("Distance = %v, want a small positive cosine distance", a.Distance)
	}
}

func TestAssign_GateExcludesNearerCategory(t *testing.T) {
	// "delivery" is nearer in vector space, but its keyword never appears,
	// so it cannot compete at all.
	cat := testCatalog(t, [][]float32{{0, 1}, {1, 0}, {-1, 0}})
	e := NewEngine(cat, &fakeEmbedder{vec: []float32{1, 0}}, t.TempDir())

	a, err := e.Assign(context.Background(), positiveRecord("002", "a cat on the porch"))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if a.Category == "delivery" {
		t.Fatal("a gated-out category must never win, however near")
	}
}

func TestAssign_NoSurvivorsFallsBack(t *testing.T) {
	// Only gated categories carry embeddings; neither keyword matches.
	cat := testCatalog(t, [][]float32{{1, 0}, {0, 1}, nil})
	embedder := &fakeEmbedder{err: errors.New("must not be called")}
	e := NewEngine(cat, embedder, t.TempDir())

	a, err := e.Assign(context.Background(), positiveRecord("003", "an empty hallway"))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if !a.Fallback || a.Category != catalog.FallbackName {
		t.Errorf("Assignment = %+v, want the fallback category without embedding", a)
	}
}

func TestAssign_EmbedFailureIsTerminal(t *testing.T) {
	cat := testCatalog(t, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	e := NewEngine(cat, &fakeEmbedder{err: errors.New("backend down")}, t.TempDir())

	a, err := e.Assign(context.Background(), positiveRecord("004", "a dog"))
	if err == nil {
		t.Fatal("Assign() should surface the embedding error")
	}
	if a != nil {
		t.Errorf("Assign() = %v, want nil on embedding failure", a)
	}
}

func TestAssign_TieFallsBack(t *testing.T) {
	// Two surviving categories equidistant from the item vector.
	cat := testCatalog(t, [][]float32{{1, 0}, {0, 1}, nil})
	e := NewEngine(cat, &fakeEmbedder{vec: []float32{1, 1}}, t.TempDir())

	a, err := e.Assign(context.Background(), positiveRecord("005", "a dog and a package"))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if !a.Fallback {
		t.Errorf("Assignment = %+v, want fallback on a distance tie", a)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"mismatched lengths", []float32{1}, []float32{1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
		{"empty", nil, nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPlace_Idempotent(t *testing.T) {
	outDir := t.TempDir()
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "CAM-001-X.jpg")
	if err := os.WriteFile(src, []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}

	cat := testCatalog(t, nil)
	e := NewEngine(cat, &fakeEmbedder{}, outDir)

	a := &Assignment{ItemID: "001", Path: src, Category: "pets"}
	if err := e.Place(a); err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	dest := filepath.Join(outDir, "pets", "CAM-001-X.jpg")
	if a.OutputPath != dest {
		t.Errorf("OutputPath = %q, want %q", a.OutputPath, dest)
	}

	// Overwrite source; re-placing must not clobber the destination.
	if err := os.WriteFile(src, []byte("second"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := e.Place(a); err != nil {
		t.Fatalf("second Place() error = %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("destination = %q, want the original copy preserved", data)
	}
}

func TestRun_DeduplicatesAndIsolatesFailures(t *testing.T) {
	cat := testCatalog(t, [][]float32{{1, 0}, {0, 1}, {0.7, 0.7}})
	outDir := t.TempDir()
	srcDir := t.TempDir()

	writeSrc := func(name string) string {
		p := filepath.Join(srcDir, name)
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	records := []sink.Record{
		{ItemID: "a", Path: writeSrc("a.jpg"), Label: "positive", Description: "a dog"},
		{ItemID: "a", Path: writeSrc("a2.jpg"), Label: "positive", Description: "a dog"}, // duplicate id
		{ItemID: "b", Path: writeSrc("b.jpg"), Label: "negative", Description: "nothing"},
		{ItemID: "c", Path: writeSrc("c.jpg"), Label: "positive", Description: "a package"},
	}

	e := NewEngine(cat, &fakeEmbedder{vec: []float32{1, 0}}, outDir)
	logPath := filepath.Join(t.TempDir(), "assignments.jsonl")

	stats, err := e.Run(context.Background(), records, logPath)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stats.Considered != 3 {
		t.Errorf("Considered = %d, want 3 (duplicate collapsed)", stats.Considered)
	}
	if stats.Assigned != 2 {
		t.Errorf("Assigned = %d, want 2", stats.Assigned)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (the negative record)", stats.Skipped)
	}

	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("assignments log missing: %v", err)
	}
}
