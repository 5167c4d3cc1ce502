package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func summary(id string, start time.Time, arts ...domain.SavedArtifact) domain.RunSummary {
	s := domain.RunSummary{
		RunID:      id,
		Request:    domain.FetchRequest{Subreddits: []string{"kpop", "pics"}, Sort: domain.SortHot, Count: 2, MediaType: domain.MediaAny},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Fetched:    10,
		Eligible:   3,
	}
	for _, a := range arts {
		s.RecordSaved(a)
	}
	s.RecordFailure(domain.Post{ID: "bad", Subreddit: "pics"}, domain.StageResolve, domain.ErrUnresolvableMedia)
	return s
}

func artifact(id, sub string, kind domain.MediaKind, size int64) domain.SavedArtifact {
	return domain.SavedArtifact{
		Post:    domain.Post{ID: id, Subreddit: sub, Title: "t " + id},
		Media:   domain.ResolvedMedia{URL: "https://i.redd.it/" + id, Kind: kind, Strategy: "direct"},
		Path:    "/out/" + sub + "/" + id,
		Size:    size,
		SavedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_RecordAndQuery(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	if err := s.RecordRun(ctx, summary("r1", t0,
		artifact("a", "kpop", domain.KindImage, 100),
		artifact("b", "Kpop", domain.KindVideo, 900),
	)); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := s.RecordRun(ctx, summary("r2", t0.Add(time.Hour),
		artifact("c", "pics", domain.KindImage, 50),
	)); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "r2" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[1].Succeeded != 2 || runs[1].Failed != 1 || runs[1].Bytes != 1000 || runs[1].Duration != 3*time.Second {
		t.Errorf("r1 = %+v", runs[1])
	}
	if len(runs[1].Subreddits) != 2 {
		t.Errorf("subreddits = %v", runs[1].Subreddits)
	}

	subs, err := s.SubredditTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].Key != "kpop" || subs[0].Count != 2 || subs[0].Bytes != 1000 {
		t.Errorf("subreddit totals = %+v", subs)
	}

	kinds, err := s.KindTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 2 || kinds[0].Key != "image" || kinds[0].Count != 2 {
		t.Errorf("kind totals = %+v", kinds)
	}

	limited, _ := s.RecentRuns(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

func TestStore_DuplicateRunRollsBack(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sum := summary("dup", time.Now(), artifact("a", "kpop", domain.KindImage, 1))

	if err := s.RecordRun(ctx, sum); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRun(ctx, sum); err == nil {
		t.Fatal("expected primary key violation")
	}
	totals, _ := s.SubredditTotals(ctx)
	if len(totals) != 1 || totals[0].Count != 1 {
		t.Errorf("second insert leaked artifacts: %+v", totals)
	}
}
