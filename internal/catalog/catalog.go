// Package catalog loads the static category catalog and its prototype
// embeddings for nearest-category assignment.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one catalog entry as written in the YAML file.
type Category struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Fallback    bool     `yaml:"fallback"`
}

// Prototype is a catalog entry prepared for assignment: compiled gate plus
// its embedding slot. Read-only during a run.
type Prototype struct {
	Index     int
	Category  Category
	Embedding []float32

	gate *regexp.Regexp
}

// GatePasses evaluates the keyword gate against a description. Matching is
// word-boundary and case-insensitive. An entry without keywords has no gate
// and always passes.
func (p *Prototype) GatePasses(description string) bool {
	if p.gate == nil {
		return true
	}
	return p.gate.MatchString(description)
}

// FallbackName is the reserved catch-all category, appended automatically
// when the catalog file does not declare one.
const FallbackName = "uncategorized"

// Catalog is the ordered prototype list with a guaranteed fallback entry.
type Catalog struct {
	Prototypes []Prototype
	fallback   int
}

// Load parses the YAML catalog at path and compiles each entry's gate.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var categories []Category
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}

	return build(categories)
}

func build(categories []Category) (*Catalog, error) {
	c := &Catalog{fallback: -1}
	for i, cat := range categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("catalog entry %d has no name", i)
		}
		if cat.Fallback {
			if c.fallback >= 0 {
				return nil, fmt.Errorf("catalog declares more than one fallback category")
			}
			c.fallback = i
		}
		proto := Prototype{Index: i, Category: cat}
		if len(cat.Keywords) > 0 {
			gate, err := compileGate(cat.Keywords)
			if err != nil {
				return nil, fmt.Errorf("category %q: %w", cat.Name, err)
			}
			proto.gate = gate
		}
		c.Prototypes = append(c.Prototypes, proto)
	}

	if c.fallback < 0 {
		c.fallback = len(c.Prototypes)
		c.Prototypes = append(c.Prototypes, Prototype{
			Index:    c.fallback,
			Category: Category{Name: FallbackName, Fallback: true},
		})
	}
	return c, nil
}

// Fallback returns the reserved catch-all prototype. Always present.
func (c *Catalog) Fallback() *Prototype {
	return &c.Prototypes[c.fallback]
}

// AttachEmbeddings pairs each prototype with its precomputed embedding.
// The embeddings file is ordered like the catalog; a missing trailing entry
// is tolerated only for the implicit fallback, which never competes on
// distance.
func (c *Catalog) AttachEmbeddings(embeddings [][]float32) error {
	n := len(embeddings)
	if n != len(c.Prototypes) && n != len(c.Prototypes)-1 {
		return fmt.Errorf("embedding count %d does not match catalog size %d", n, len(c.Prototypes))
	}
	for i := range embeddings {
		c.Prototypes[i].Embedding = embeddings[i]
	}
	return nil
}

// compileGate builds one word-boundary, case-insensitive alternation over
// the keywords.
func compileGate(keywords []string) (*regexp.Regexp, error) {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(strings.TrimSpace(kw))
	}
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// LoadEmbeddings reads a JSON array of vectors aligned with catalog order.
func LoadEmbeddings(path string) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read embeddings: %w", err)
	}
	var embeddings [][]float32
	if err := json.Unmarshal(data, &embeddings); err != nil {
		return nil, fmt.Errorf("parse embeddings: %w", err)
	}
	return embeddings, nil
}

// SaveEmbeddings writes the vectors produced by a catalog build.
func SaveEmbeddings(path string, embeddings [][]float32) error {
	data, err := json.MarshalIndent(embeddings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal embeddings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	return nil
}

// Slugify converts a category name into a directory-safe slug: lowercase
// alphanumerics with spaces, underscores, and hyphens collapsed to hyphens
// and everything else stripped.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			b.WriteByte('-')
		}
	}
	return b.String()
}
