package domain

import (
	"errors"
	"fmt"
	"time"
)

// Failure explains why a post produced no artifact.
type Failure struct {
	PostID    string `json:"id"`
	Subreddit string `json:"subreddit,omitempty"`
	Stage     Stage  `json:"stage"`
	Reason    string `json:"reason"`
}

// RunSummary aggregates the outcome of one run. Only the orchestrator mutates it.
type RunSummary struct {
	RunID      string          `json:"run_id"`
	Request    FetchRequest    `json:"request"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Fetched    int             `json:"fetched"`
	Eligible   int             `json:"eligible"`
	Attempted  int             `json:"attempted"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Failures   []Failure       `json:"failures,omitempty"`
	Notes      []string        `json:"notes,omitempty"`
	Artifacts  []SavedArtifact `json:"artifacts,omitempty"`
}

// Notef appends a free-form note.
func (s *RunSummary) Notef(format string, args ...any) {
	s.Notes = append(s.Notes, fmt.Sprintf(format, args...))
}

// RecordSaved counts an artifact.
func (s *RunSummary) RecordSaved(a SavedArtifact) {
	s.Attempted++
	s.Succeeded++
	s.Artifacts = append(s.Artifacts, a)
}

// RecordFailure counts a failed or skipped post. Duplicates and cancellations are skips.
func (s *RunSummary) RecordFailure(p Post, stage Stage, err error) {
	f := Failure{PostID: p.ID, Subreddit: p.Subreddit, Stage: stage, Reason: err.Error()}
	s.Failures = append(s.Failures, f)
	if stage == StageCanceled || errors.Is(err, ErrDuplicateMedia) {
		s.Skipped++
		return
	}
	s.Attempted++
	s.Failed++
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// TotalBytes sums artifact sizes.
func (s RunSummary) TotalBytes() int64 {
	var n int64
	for _, a := range s.Artifacts {
		n += a.Size
	}
	return n
}
