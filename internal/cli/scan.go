package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jhowland/camsift/internal/classify"
	"github.com/jhowland/camsift/internal/gemini"
	"github.com/jhowland/camsift/internal/media"
	"github.com/jhowland/camsift/internal/metrics"
	"github.com/jhowland/camsift/internal/pipeline"
	"github.com/jhowland/camsift/internal/sink"
	"github.com/jhowland/camsift/internal/state"
)

var (
	scanRoot        string
	scanOut         string
	scanLimit       int
	scanPerDirCap   int
	scanConcurrency int
	scanBatchSize   int
	scanNoUI        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Classify media under a directory tree",
	Long: `Scan walks the source tree, draws a randomized sample of unprocessed
media files, classifies each one with Gemini, and copies accepted files into
per-label directories under the output directory.

Every outcome is recorded before the item is marked processed, so an
interrupted scan can be re-run and resumes with the interrupted items first.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRoot, "root", "", "source directory to scan (required)")
	scanCmd.Flags().StringVar(&scanOut, "out", "selected", "output directory for accepted media")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "max fresh items per run (0 = unlimited)")
	scanCmd.Flags().IntVar(&scanPerDirCap, "per-dir-cap", 0, "max items drawn per source directory across all runs (0 = unlimited)")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 0, "worker count (0 = one per API key)")
	scanCmd.Flags().IntVar(&scanBatchSize, "batch-size", 0, "items per batch between checkpoints (0 = config default)")
	scanCmd.Flags().BoolVar(&scanNoUI, "no-ui", false, "disable the interactive progress display")
	scanCmd.MarkFlagRequired("root")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runID := uuid.NewString()[:8]
	logger := slog.Default().With("run_id", runID)

	store := state.Load(cfg.StateFile)
	processed, selected, failed := store.Counts()
	logger.Info("state loaded",
		"path", cfg.StateFile,
		"processed", processed,
		"pending", selected,
		"failed", failed)

	discoverer := media.NewDiscoverer(store)
	items, err := discoverer.Discover(scanRoot, media.Options{
		TotalLimit: scanLimit,
		PerDirCap:  scanPerDirCap,
	})
	if err != nil {
		return fmt.Errorf("discovering media: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("Nothing to do: no unprocessed media found.")
		return nil
	}

	collector := metrics.NewCollector()
	client, err := gemini.NewClient(ctx, cfg, collector)
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	snk, err := sink.New(runID, cfg.ResultsFile, cfg.ReportFile, scanOut)
	if err != nil {
		return fmt.Errorf("opening result sink: %w", err)
	}
	defer snk.Close()

	classifier := classify.New(client, classify.DefaultProfiles(cfg.ImageTimeout, cfg.VideoTimeout))

	dispatcher := pipeline.NewDispatcher(store, classifier.Classify, func(outcome classify.Outcome) {
		if err := snk.Record(outcome); err != nil {
			logger.Error("recording outcome", "id", outcome.Item.ID, "error", err)
		}
	})

	concurrency := scanConcurrency
	if concurrency <= 0 {
		concurrency = cfg.WorkerCount()
	}
	batchSize := scanBatchSize
	if batchSize <= 0 {
		batchSize = cfg.BatchSize
	}
	opts := pipeline.Options{
		Concurrency: concurrency,
		BatchSize:   batchSize,
		Checkpoint: func() {
			if err := store.Save(); err != nil {
				logger.Error("checkpoint save failed", "error", err)
			}
		},
	}

	logger.Info("scan starting",
		"root", scanRoot,
		"items", len(items),
		"workers", concurrency,
		"batch_size", batchSize,
		"api_keys", client.Keys())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		dispatcher.Run(runCtx, items, opts)
	}()

	tracker := dispatcher.Tracker()
	if scanNoUI {
		waitWithLogs(runCtx, logger, tracker, runDone)
	} else {
		if err := RunScanProgress(tracker, runDone, cancel); err != nil {
			logger.Warn("progress display failed, waiting without it", "error", err)
			waitWithLogs(runCtx, logger, tracker, runDone)
		}
	}

	// Final checkpoint covers the tail batch and interrupted runs alike.
	if err := store.Save(); err != nil {
		logger.Error("final state save failed", "error", err)
	}

	stats := sink.Stats{
		Processed:  tracker.Done(),
		Accepted:   tracker.Accepted(),
		Failed:     tracker.Failed(),
		Duplicates: tracker.Duplicates(),
	}
	if err := snk.WriteTrailer(stats); err != nil {
		logger.Error("writing report trailer", "error", err)
	}

	logger.Info("scan finished",
		"duration", time.Since(start).Round(time.Second),
		"processed", stats.Processed,
		"accepted", stats.Accepted,
		"failed", stats.Failed,
		"duplicates", stats.Duplicates,
		"interrupted", ctx.Err() != nil)

	logTimings(logger, collector)

	if ctx.Err() != nil {
		fmt.Println("\nInterrupted. Progress saved; re-run scan to resume.")
	}
	return nil
}

// waitWithLogs blocks until the dispatcher finishes, emitting periodic
// progress lines instead of the interactive display.
func waitWithLogs(ctx context.Context, logger *slog.Logger, tracker *pipeline.Tracker, runDone <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-runDone:
			return
		case <-ticker.C:
			logger.Info("scan progress",
				"done", tracker.Done(),
				"total", tracker.Total(),
				"accepted", tracker.Accepted(),
				"failed", tracker.Failed())
		case <-ctx.Done():
			// Keep waiting: workers still need to unwind.
			<-runDone
			return
		}
	}
}

// logTimings records per-operation API timings at debug level.
func logTimings(logger *slog.Logger, collector *metrics.Collector) {
	snap := collector.Snapshot()
	for name, op := range map[string]*metrics.OperationSnapshot{
		"upload":   snap.Upload,
		"describe": snap.Describe,
		"classify": snap.Classify,
		"delete":   snap.Delete,
	} {
		if op == nil || op.Count == 0 {
			continue
		}
		logger.Debug("api timing",
			"op", name,
			"count", op.Count,
			"failures", op.Failures,
			"avg_ms", op.AvgTimeMs,
			"max_ms", op.MaxTimeMs)
	}
}
