// Package pipeline fans classification jobs out over a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jhowland/camsift/internal/classify"
	"github.com/jhowland/camsift/internal/media"
	"github.com/jhowland/camsift/internal/state"
)

// ClassifyFunc runs the remote protocol for one item.
type ClassifyFunc func(ctx context.Context, item media.Item) classify.Outcome

// HandleFunc receives each outcome as it completes. Called from worker
// goroutines; implementations must serialize their own writes.
type HandleFunc func(outcome classify.Outcome)

// Options configure a dispatch run.
type Options struct {
	// Concurrency is the worker pool size per batch.
	Concurrency int
	// BatchSize chunks the item list; each batch's pool drains fully
	// before the next starts, bounding open uploads and memory
	// independent of total item count. 0 means one batch.
	BatchSize int
	// Checkpoint, if set, runs after every batch (state save).
	Checkpoint func()
}

// Tracker exposes live run counters for the progress UI and final summary.
type Tracker struct {
	total      atomic.Int64
	done       atomic.Int64
	accepted   atomic.Int64
	failed     atomic.Int64
	duplicates atomic.Int64
}

func (t *Tracker) Total() int64      { return t.total.Load() }
func (t *Tracker) Done() int64       { return t.done.Load() }
func (t *Tracker) Accepted() int64   { return t.accepted.Load() }
func (t *Tracker) Failed() int64     { return t.failed.Load() }
func (t *Tracker) Duplicates() int64 { return t.duplicates.Load() }

// Dispatcher runs classification jobs with duplicate suppression against
// the state store. Job failures are isolated: a panicking or failing job
// never aborts the batch.
type Dispatcher struct {
	store    *state.Store
	classify ClassifyFunc
	handle   HandleFunc
	tracker  *Tracker
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store *state.Store, classifyFn ClassifyFunc, handle HandleFunc) *Dispatcher {
	return &Dispatcher{
		store:    store,
		classify: classifyFn,
		handle:   handle,
		tracker:  &Tracker{},
	}
}

// Tracker returns the live counters for this dispatcher.
func (d *Dispatcher) Tracker() *Tracker {
	return d.tracker
}

// Run processes items in batches. Returns early (without error) when ctx is
// cancelled; interrupted items stay selected so the next run retries them.
func (d *Dispatcher) Run(ctx context.Context, items []media.Item, opts Options) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = len(items)
	}

	d.tracker.total.Store(int64(len(items)))
	slog.Info("dispatch starting", "items", len(items), "concurrency", concurrency, "batch_size", batchSize)

	for start := 0; start < len(items); start += batchSize {
		if ctx.Err() != nil {
			slog.Info("dispatch interrupted", "done", d.tracker.Done())
			return
		}

		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		d.runBatch(ctx, items[start:end], concurrency)

		if opts.Checkpoint != nil {
			opts.Checkpoint()
		}
	}

	slog.Info("dispatch complete",
		"done", d.tracker.Done(),
		"accepted", d.tracker.Accepted(),
		"failed", d.tracker.Failed(),
		"duplicates", d.tracker.Duplicates())
}

func (d *Dispatcher) runBatch(ctx context.Context, batch []media.Item, concurrency int) {
	workCh := make(chan media.Item, len(batch))
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if ctx.Err() != nil {
					return
				}
				d.process(ctx, item)
			}
		}()
	}

	for _, item := range batch {
		workCh <- item
	}
	close(workCh)
	wg.Wait()
}

// process runs one job. The atomic claim is what guarantees at most one
// remote attempt per identity per run; items left selected by an
// interrupted run claim successfully and are retried.
func (d *Dispatcher) process(ctx context.Context, item media.Item) {
	if !d.store.Claim(item.ID) {
		d.tracker.duplicates.Add(1)
		d.tracker.done.Add(1)
		d.handle(classify.Outcome{Item: item, Label: classify.LabelDuplicate})
		return
	}

	outcome := d.safeClassify(ctx, item)

	// An error caused by cancellation is not a verdict on the item: leave
	// it selected so the next run's recovery pass retries it.
	if outcome.Err != nil && ctx.Err() != nil {
		return
	}

	d.handle(outcome)

	if outcome.Failed() {
		d.store.MarkFailed(item.ID)
		d.tracker.failed.Add(1)
	} else {
		d.store.MarkProcessed(item.ID)
		if outcome.Label.Accepted() {
			d.tracker.accepted.Add(1)
		}
	}
	d.tracker.done.Add(1)
}

// safeClassify converts a panic inside a job into a failed outcome.
func (d *Dispatcher) safeClassify(ctx context.Context, item media.Item) (outcome classify.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classification job panicked", "item", item.ID, "panic", r)
			outcome = classify.Outcome{
				Item:  item,
				Label: classify.LabelError,
				Err:   fmt.Errorf("job panic: %v", r),
			}
		}
	}()
	return d.classify(ctx, item)
}
