package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jhowland/camsift/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the category catalog",
}

var catalogBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the category descriptions",
	Long: `Build embeds every category description with the configured embedding
backend and saves the vectors next to the catalog. Assign loads these
vectors instead of re-embedding categories on every run.

Re-run build whenever the catalog file or the embedding model changes.`,
	RunE: runCatalogBuild,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the catalog with its embedding status",
	RunE:  runCatalogShow,
}

func init() {
	catalogCmd.AddCommand(catalogBuildCmd)
	catalogCmd.AddCommand(catalogShowCmd)
}

func runCatalogBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	embedder, cleanup, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer cleanup()

	embeddings := make([][]float32, 0, len(cat.Prototypes))
	for i, proto := range cat.Prototypes {
		text := proto.Category.Description
		if text == "" {
			if proto.Category.Fallback && i == len(cat.Prototypes)-1 {
				// The trailing catch-all never competes on distance;
				// leaving it out keeps the file aligned with the catalog.
				continue
			}
			text = proto.Category.Name
		}
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embedding category %q: %w", proto.Category.Name, err)
		}
		embeddings = append(embeddings, vec)
		fmt.Printf("embedded %-24s (%d dims)\n", proto.Category.Name, len(vec))
	}

	if err := catalog.SaveEmbeddings(cfg.EmbeddingsFile, embeddings); err != nil {
		return fmt.Errorf("saving embeddings: %w", err)
	}
	fmt.Printf("\nWrote %d vectors to %s (model %s)\n", len(embeddings), cfg.EmbeddingsFile, embedder.Model())
	return nil
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	embedded := map[int]int{}
	if embeddings, err := catalog.LoadEmbeddings(cfg.EmbeddingsFile); err == nil {
		if err := cat.AttachEmbeddings(embeddings); err == nil {
			for i, p := range cat.Prototypes {
				embedded[i] = len(p.Embedding)
			}
		}
	}

	for i, proto := range cat.Prototypes {
		flags := make([]string, 0, 2)
		if proto.Category.Fallback {
			flags = append(flags, "fallback")
		}
		if dims := embedded[i]; dims > 0 {
			flags = append(flags, fmt.Sprintf("%d dims", dims))
		}
		suffix := ""
		if len(flags) > 0 {
			suffix = " [" + strings.Join(flags, ", ") + "]"
		}

		fmt.Printf("%-24s%s\n", proto.Category.Name, suffix)
		if proto.Category.Description != "" {
			fmt.Printf("    %s\n", proto.Category.Description)
		}
		if len(proto.Category.Keywords) > 0 {
			fmt.Printf("    keywords: %s\n", strings.Join(proto.Category.Keywords, ", "))
		}
	}
	return nil
}
