package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// ReportDir is the directory under the storage root that holds run reports.
const ReportDir = "_reports"

type reportLine struct {
	Type string `json:"type"`
	*domain.Outcome
	Summary *domain.RunSummary `json:"summary,omitempty"`
}

// ReportWriter owns one run's NDJSON report file. Only its Start goroutine
// touches the file, so producers never need a lock.
type ReportWriter struct {
	FilePath string
	logger   *slog.Logger
	err      error
}

// NewReportWriter places the report for runID under root.
func NewReportWriter(root, runID string, logger *slog.Logger) *ReportWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWriter{
		FilePath: filepath.Join(root, ReportDir, "report_"+runID+".ndjson"),
		logger:   logger,
	}
}

// Start appends every outcome received on input, then the summary, if one is
// sent before summary is closed.
func (w *ReportWriter) Start(wg *sync.WaitGroup, input <-chan domain.Outcome, summary <-chan domain.RunSummary) {
	defer wg.Done()

	f, err := w.open()
	if err != nil {
		w.fail(err)
		// Keep draining so producers never block on a dead writer.
		for range input {
		}
		for range summary {
		}
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for o := range input {
		if err := enc.Encode(reportLine{Type: "outcome", Outcome: &o}); err != nil && w.err == nil {
			w.fail(err)
		}
	}
	for s := range summary {
		if err := enc.Encode(reportLine{Type: "summary", Summary: &s}); err != nil && w.err == nil {
			w.fail(err)
		}
	}
}

// Err returns the first write error. Call it after Start has returned.
func (w *ReportWriter) Err() error {
	return w.err
}

func (w *ReportWriter) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(w.FilePath), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(w.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func (w *ReportWriter) fail(err error) {
	w.err = fmt.Errorf("report %s: %w", w.FilePath, err)
	w.logger.Warn("Report write failed", "path", w.FilePath, "error", err)
}
