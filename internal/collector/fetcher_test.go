package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(posts []domain.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestListingLimit(t *testing.T) {
	tests := []struct{ count, factor, want int }{
		{1, 5, 25},
		{10, 5, 50},
		{5, 1, 25},
		{50, 5, 100},
	}
	for _, tt := range tests {
		if got := ListingLimit(tt.count, tt.factor); got != tt.want {
			t.Errorf("ListingLimit(%d, %d) = %d, want %d", tt.count, tt.factor, got, tt.want)
		}
	}
}

func TestInterleave(t *testing.T) {
	a := []domain.Post{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}}
	b := []domain.Post{{ID: "b1"}}
	c := []domain.Post{{ID: "c1"}, {ID: "c2"}}

	got := ids(Interleave([][]domain.Post{a, b, c}))
	want := []string{"a1", "b1", "c1", "a2", "c2", "a3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if single := Interleave([][]domain.Post{a}); len(single) != 3 || single[2].ID != "a3" {
		t.Errorf("single list should pass through, got %v", ids(single))
	}
}

func TestFetcher_FailureIsolated(t *testing.T) {
	fc := NewFixtureClient().
		Add("good", domain.Post{ID: "g1"}, domain.Post{ID: "g2"}).
		Fail("bad", domain.ErrRateLimited)

	f := NewFetcher(fc, 5, discardLogger())
	res := f.Fetch(context.Background(), domain.FetchRequest{
		Subreddits: []string{"bad", "good"},
		Sort:       domain.SortTop,
		TimeFilter: domain.TimeWeek,
		Count:      2,
	})

	if len(res.Posts) != 2 {
		t.Fatalf("posts = %v, want g1 g2", ids(res.Posts))
	}
	if len(res.Failed) != 1 || res.Failed[0].Subreddit != "bad" {
		t.Fatalf("Failed = %+v", res.Failed)
	}
	if !errors.Is(res.Failed[0], domain.ErrSubredditFetchFailed) || !errors.Is(res.Failed[0], domain.ErrRateLimited) {
		t.Errorf("failure should match both sentinels: %v", res.Failed[0])
	}
	if len(res.Notes) != 1 {
		t.Errorf("Notes = %v", res.Notes)
	}

	for _, q := range fc.Queries() {
		if q.Limit != 25 || q.Sort != domain.SortTop || q.TimeFilter != domain.TimeWeek {
			t.Errorf("unexpected query %+v", q)
		}
	}
}
