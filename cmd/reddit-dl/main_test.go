package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "text")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}

	if _, err := newLogger(&buf, "loud", "json"); err == nil {
		t.Error("expected invalid level error")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("expected invalid format error")
	}
}

func TestMatrixRequests(t *testing.T) {
	dir := t.TempDir()
	termsPath := filepath.Join(dir, "terms.csv")
	os.WriteFile(termsPath, []byte("term\nmomo\n"), 0o644)

	reqs, err := matrixRequests("", "kpop", "sana", termsPath, "year,month", 3, domain.MediaImage)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 4 {
		t.Fatalf("got %d requests, want 2 terms x 2 times", len(reqs))
	}
	if all := allSubreddits(reqs); len(all) != 1 || all[0] != "kpop" {
		t.Errorf("allSubreddits = %v", all)
	}

	if _, err := matrixRequests("", "kpop", "sana", "", "decade", 1, domain.MediaAny); err == nil {
		t.Error("expected error for unknown time filter")
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.RunSummary{
		RunID:      "abc",
		Request:    domain.FetchRequest{Subreddits: []string{"kpop"}, Sort: domain.SortTop, TimeFilter: domain.TimeYear, Count: 2, MediaType: domain.MediaImage},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
	s.RecordSaved(domain.SavedArtifact{Path: "out/kpop/a.jpg", Size: 2048, Media: domain.ResolvedMedia{Kind: domain.KindImage}})
	s.RecordFailure(domain.Post{ID: "b"}, domain.StageDownload, domain.ErrDownloadFailed)
	s.Failures = append(s.Failures, domain.Failure{Subreddit: "private", Stage: domain.StageFetch, Reason: "forbidden"})
	s.Notef("shortfall: saved 1 of 2 requested posts")

	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()
	for _, want := range []string{"Run abc", "saved 1 (2.0 kB)", "+ out/kpop/a.jpg", "- b [download]", "- r/private [fetch]", "* shortfall"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary lacks %q:\n%s", want, out)
		}
	}
}

func TestOrEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if got := orEnv("warn", "LOG_LEVEL", "info"); got != "warn" {
		t.Errorf("flag value should win, got %q", got)
	}
	if got := orEnv("", "LOG_LEVEL", "info"); got != "debug" {
		t.Errorf("env value should apply, got %q", got)
	}
	t.Setenv("LOG_LEVEL", "")
	if got := orEnv("", "LOG_LEVEL", "info"); got != "info" {
		t.Errorf("default should apply, got %q", got)
	}
}
