// Package sink records classification outcomes durably and places accepted
// media into per-label directories.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jhowland/camsift/internal/classify"
)

// Record is one per-item outcome, append-only once written. The same item
// identity may appear more than once across runs; the state store, not this
// log, is what prevents redundant remote work.
type Record struct {
	RunID       string    `json:"run_id"`
	ItemID      string    `json:"item_id"`
	Path        string    `json:"path"`
	Kind        string    `json:"kind"`
	Description string    `json:"description,omitempty"`
	RawLabel    string    `json:"raw_label,omitempty"`
	Label       string    `json:"label"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Stats summarizes a finished run for the report trailer.
type Stats struct {
	Processed  int64
	Accepted   int64
	Failed     int64
	Duplicates int64
}

// Sink appends outcomes to a JSONL results log and a human-readable text
// report, and copies accepted media into label subdirectories of outDir.
// Safe for concurrent use; physical writes are serialized by one mutex.
type Sink struct {
	mu      sync.Mutex
	runID   string
	outDir  string
	results *os.File
	report  *os.File
}

// copiedLabels maps labels to the output subdirectory their media is copied
// into. Negative and failed items are logged but not copied.
var copiedLabels = map[classify.Label]string{
	classify.LabelPositive:    "positive",
	classify.LabelAmbiguous:   "ambiguous",
	classify.LabelUnparseable: "ambiguous",
}

// New opens (appending) the results and report files.
func New(runID, resultsPath, reportPath, outDir string) (*Sink, error) {
	results, err := os.OpenFile(resultsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open results log: %w", err)
	}
	report, err := os.OpenFile(reportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		results.Close()
		return nil, fmt.Errorf("open report: %w", err)
	}
	return &Sink{runID: runID, outDir: outDir, results: results, report: report}, nil
}

// Close flushes and closes both logs.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err1 := s.results.Close()
	err2 := s.report.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Record logs one outcome and, for accepted or review-worthy labels, copies
// the source file into its label directory. A copy failure is logged on the
// record but never aborts other items.
func (s *Sink) Record(outcome classify.Outcome) error {
	rec := Record{
		RunID:       s.runID,
		ItemID:      outcome.Item.ID,
		Path:        outcome.Item.Path,
		Kind:        string(outcome.Item.Kind),
		Description: outcome.Description,
		RawLabel:    outcome.RawLabel,
		Label:       string(outcome.Label),
		RecordedAt:  time.Now(),
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}

	if dir, ok := copiedLabels[outcome.Label]; ok {
		dest, err := s.place(outcome.Item.Path, dir)
		if err != nil {
			slog.Warn("failed to copy accepted media", "item", rec.ItemID, "error", err)
		} else {
			rec.OutputPath = dest
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.results.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append result: %w", err)
	}

	fmt.Fprintf(s.report, "File: %s\n", rec.Path)
	if rec.Description != "" {
		fmt.Fprintf(s.report, "Description: %s\n", rec.Description)
	}
	fmt.Fprintf(s.report, "Label: %s\n", rec.Label)
	if rec.Error != "" {
		fmt.Fprintf(s.report, "Error: %s\n", rec.Error)
	}
	fmt.Fprintf(s.report, "\n")

	return nil
}

// WriteTrailer appends the aggregate block a finished run leaves behind.
func (s *Sink) WriteTrailer(stats Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.report,
		"Run %s complete\nProcessed: %d\nAccepted: %d\nFailed: %d\nDuplicates skipped: %d\nTimestamp: %s\n\n",
		s.runID, stats.Processed, stats.Accepted, stats.Failed, stats.Duplicates,
		time.Now().Format("2006-01-02 15:04:05"))
	return err
}

// place copies src into the label subdirectory, creating it if absent.
// Copy, not move: the source archive stays intact.
func (s *Sink) place(src, label string) (string, error) {
	dir := filepath.Join(s.outDir, label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create label dir: %w", err)
	}
	dest := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dest); err != nil {
		return "", err
	}
	return dest, nil
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

// ReadRecords streams every record in a results log. Unparseable lines are
// skipped with a warning rather than aborting the read.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("skipping malformed result line", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results log: %w", err)
	}
	return records, nil
}
