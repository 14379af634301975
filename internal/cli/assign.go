package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jhowland/camsift/internal/assign"
	"github.com/jhowland/camsift/internal/catalog"
	"github.com/jhowland/camsift/internal/config"
	"github.com/jhowland/camsift/internal/gemini"
	"github.com/jhowland/camsift/internal/llm"
	"github.com/jhowland/camsift/internal/metrics"
	"github.com/jhowland/camsift/internal/sink"
)

var assignOut string

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Place accepted media into the nearest catalog category",
	Long: `Assign reads the scan results log, embeds each accepted item's stored
description, and copies the file into the directory of the catalog category
with the smallest cosine distance. Categories with keywords only compete
when a keyword matches the description; items no category accepts land in
the catch-all category.

Run 'camsift catalog build' first to embed the category descriptions.`,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().StringVar(&assignOut, "out", "categorized", "output directory for category subdirectories")
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	embeddings, err := catalog.LoadEmbeddings(cfg.EmbeddingsFile)
	if err != nil {
		return fmt.Errorf("loading catalog embeddings (run 'camsift catalog build' first): %w", err)
	}
	if err := cat.AttachEmbeddings(embeddings); err != nil {
		return fmt.Errorf("attaching catalog embeddings: %w", err)
	}

	records, err := sink.ReadRecords(cfg.ResultsFile)
	if err != nil {
		return fmt.Errorf("reading results log: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("Nothing to do: results log is empty. Run 'camsift scan' first.")
		return nil
	}

	embedder, cleanup, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer cleanup()

	engine := assign.NewEngine(cat, embedder, assignOut)
	stats, err := engine.Run(ctx, records, cfg.AssignmentsFile)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("assignment pass: %w", err)
	}

	fmt.Printf("Considered: %d\nAssigned:   %d (fallback %d)\nSkipped:    %d\nErrors:     %d\n",
		stats.Considered, stats.Assigned, stats.Fallback, stats.Skipped, stats.Errors)

	if ctx.Err() != nil {
		fmt.Println("\nInterrupted. Completed assignments were logged; re-run to continue.")
	}
	return nil
}

// buildEmbedder wires the configured embedding backend. The Gemini provider
// shares the pipeline client; the returned cleanup closes whatever was
// opened.
func buildEmbedder(ctx context.Context, cfg config.Config) (llm.Embedder, func(), error) {
	var backend llm.GeminiBackend
	cleanup := func() {}

	if cfg.EmbedProvider == config.ProviderGemini {
		client, err := gemini.NewClient(ctx, cfg, metrics.NewCollector())
		if err != nil {
			return nil, nil, err
		}
		backend = client
		cleanup = client.Close
	}

	embedder, err := llm.NewEmbedder(cfg, backend)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return embedder, cleanup, nil
}
