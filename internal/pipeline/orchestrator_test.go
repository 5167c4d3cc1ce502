package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qepting91/reddit-media-dl/internal/collector"
	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/storage"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mediaServer serves a small body for every path under /media/ and 404 elsewhere.
func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/media/") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "bytes of %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Reddit.Mode = "mock"
	cfg.Storage.Root = t.TempDir()
	cfg.Storage.WriteReport = false
	cfg.Download.MaxAttempts = 2
	cfg.Download.RetryDelay = time.Millisecond
	cfg.Download.Timeout = 5 * time.Second
	cfg.Media.FFmpegPath = "ffmpeg-not-installed-for-tests"
	return &cfg
}

func build(t *testing.T, cfg *config.Config, fc *collector.FixtureClient) *Orchestrator {
	t.Helper()
	return Build(cfg, collector.Clients{Collector: fc, Gallery: fc}, quiet())
}

func imagePost(sub, id, title, url string) domain.Post {
	return domain.Post{
		ID:         id,
		Title:      title,
		Subreddit:  sub,
		URL:        url,
		CreatedUTC: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func assertDistinctFiles(t *testing.T, arts []domain.SavedArtifact) {
	t.Helper()
	seen := make(map[string]bool)
	for _, a := range arts {
		if seen[a.Path] {
			t.Errorf("path %q used twice", a.Path)
		}
		seen[a.Path] = true
		if _, err := os.Stat(a.Path); err != nil {
			t.Errorf("artifact missing on disk: %v", err)
		}
		if _, err := os.Stat(a.SidecarPath); err != nil {
			t.Errorf("sidecar missing: %v", err)
		}
	}
}

func TestRun_SavesExactlyCount(t *testing.T) {
	srv := mediaServer(t)
	fc := collector.NewFixtureClient().Add("pics", collector.DemoPosts("pics", 10, srv.URL+"/media")...)
	cfg := testConfig(t)

	s, err := build(t, cfg, fc).Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics"}, Count: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Succeeded != 3 || len(s.Artifacts) != 3 || s.Failed != 0 {
		t.Fatalf("summary = %+v", s)
	}
	assertDistinctFiles(t, s.Artifacts)
	for _, n := range s.Notes {
		if strings.Contains(n, "shortfall") {
			t.Errorf("unexpected shortfall note %q", n)
		}
	}
}

func TestRun_ShortfallIsNotAnError(t *testing.T) {
	srv := mediaServer(t)
	fc := collector.NewFixtureClient().Add("pics", collector.DemoPosts("pics", 4, srv.URL+"/media")...)

	s, err := build(t, testConfig(t), fc).Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics"}, Count: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Succeeded != 4 {
		t.Fatalf("Succeeded = %d, want 4", s.Succeeded)
	}
	found := false
	for _, n := range s.Notes {
		found = found || strings.Contains(n, "shortfall: 4 of 10")
	}
	if !found {
		t.Errorf("no shortfall note in %v", s.Notes)
	}
}

func TestRun_KpopScenario(t *testing.T) {
	srv := mediaServer(t)
	var posts []domain.Post
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("k%02d", i)
		title := fmt.Sprintf("Weekly thread %d", i)
		url := srv.URL + "/media/" + id + ".jpg"
		switch {
		case i < 5:
			title = fmt.Sprintf("SANA fancam %d", i)
		case i < 8:
			title = fmt.Sprintf("Sana dance practice %d", i)
			url = srv.URL + "/media/" + id + ".mp4"
		case i%3 == 0:
			url = srv.URL + "/media/" + id + ".mp4"
		}
		posts = append(posts, imagePost("kpop", id, title, url))
	}
	fc := collector.NewFixtureClient().Add("kpop", posts...)

	req, err := parseTokens("year", "kpop", "sana", "5", "image")
	if err != nil {
		t.Fatal(err)
	}
	s, err := build(t, testConfig(t), fc).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if q := fc.Queries(); len(q) != 1 || q[0].Sort != domain.SortTop || q[0].TimeFilter != domain.TimeYear {
		t.Errorf("queries = %+v", q)
	}
	if len(s.Artifacts) != 5 {
		t.Fatalf("got %d artifacts, want 5 (failures: %v)", len(s.Artifacts), s.Failures)
	}
	for _, a := range s.Artifacts {
		if a.Media.Kind != domain.KindImage {
			t.Errorf("%s kind = %s", a.Post.ID, a.Media.Kind)
		}
		if !strings.Contains(strings.ToLower(a.Post.Title), "sana") {
			t.Errorf("%s title %q lacks term", a.Post.ID, a.Post.Title)
		}
	}
	assertDistinctFiles(t, s.Artifacts)
}

type resolverFunc func(ctx context.Context, p domain.Post, hint domain.MediaType) (domain.ResolvedMedia, error)

func (f resolverFunc) Resolve(ctx context.Context, p domain.Post, hint domain.MediaType) (domain.ResolvedMedia, error) {
	return f(ctx, p, hint)
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
	// failPost fails downloads staged for this post ID.
	failPost string
}

func (d *fakeDownloader) Download(ctx context.Context, m domain.ResolvedMedia, dest string) (int64, error) {
	d.mu.Lock()
	d.calls++
	err := d.fail[m.URL]
	if d.failPost != "" && strings.HasPrefix(filepath.Base(dest), ".part-"+d.failPost+"-") {
		err = fmt.Errorf("%w: status 404", domain.ErrNotFound)
	}
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}
	body := []byte("media:" + m.URL)
	return int64(len(body)), os.WriteFile(dest, body, 0o644)
}

type fixtureFetcher []domain.Post

func (f fixtureFetcher) Fetch(ctx context.Context, req domain.FetchRequest) collector.FetchResult {
	return collector.FetchResult{Posts: f}
}

func newFakeOrchestrator(t *testing.T, posts []domain.Post, r Resolver, d Downloader) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	sink := storage.NewSink(config.StorageConfig{
		Root:             root,
		FilenameTemplate: "{id}_{slug}{ext}",
		SlugMaxLen:       40,
		WriteSidecars:    true,
		WriteManifest:    true,
	}, quiet())
	return New(fixtureFetcher(posts), r, d, sink, Options{Workers: 3, Retry: retryFast()}, quiet()), root
}

func TestRun_SameResolvedURLSavedOnce(t *testing.T) {
	posts := []domain.Post{
		imagePost("pics", "a", "original", "https://i.redd.it/cat.jpg"),
		imagePost("pics", "b", "repost", "https://i.redd.it/cat-mirror.jpg"),
		imagePost("pics", "c", "other", "https://i.redd.it/dog.jpg"),
	}
	res := resolverFunc(func(ctx context.Context, p domain.Post, _ domain.MediaType) (domain.ResolvedMedia, error) {
		u := strings.Replace(p.URL, "-mirror", "", 1)
		return domain.ResolvedMedia{URL: u, Kind: domain.KindImage, Ext: ".jpg"}, nil
	})
	o, _ := newFakeOrchestrator(t, posts, res, &fakeDownloader{})
	o.opts.Workers = 1

	s, err := o.Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics"}, Count: 3})
	if err != nil {
		t.Fatal(err)
	}
	if s.Succeeded != 2 || s.Skipped != 1 || s.Failed != 0 {
		t.Fatalf("summary = succeeded %d skipped %d failed %d", s.Succeeded, s.Skipped, s.Failed)
	}
	if len(s.Failures) != 1 || s.Failures[0].PostID != "b" || s.Failures[0].Stage != domain.StageDedup {
		t.Errorf("failures = %+v", s.Failures)
	}
}

func TestRun_FailedDownloadDoesNotBlockDuplicate(t *testing.T) {
	posts := []domain.Post{
		imagePost("pics", "a", "first copy", "https://i.redd.it/cat.jpg"),
		imagePost("pics", "b", "second copy", "https://i.redd.it/cat.jpg"),
	}
	res := resolverFunc(func(ctx context.Context, p domain.Post, _ domain.MediaType) (domain.ResolvedMedia, error) {
		return domain.ResolvedMedia{URL: p.URL, Kind: domain.KindImage, Ext: ".jpg"}, nil
	})

	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprint("workers=", workers), func(t *testing.T) {
			o, _ := newFakeOrchestrator(t, posts, res, &fakeDownloader{failPost: "a"})
			o.opts.Workers = workers

			s, err := o.Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics"}, Count: 2})
			if err != nil {
				t.Fatal(err)
			}
			if s.Succeeded != 1 || s.Failed != 1 || s.Skipped != 0 {
				t.Fatalf("summary = succeeded %d failed %d skipped %d (%+v)", s.Succeeded, s.Failed, s.Skipped, s.Failures)
			}
			if s.Artifacts[0].Post.ID != "b" {
				t.Errorf("saved %s, want b", s.Artifacts[0].Post.ID)
			}
			if len(s.Failures) != 1 || s.Failures[0].PostID != "a" || s.Failures[0].Stage != domain.StageDownload {
				t.Errorf("failures = %+v", s.Failures)
			}
		})
	}
}

func TestRun_UnresolvableDoesNotStopSiblings(t *testing.T) {
	srv := mediaServer(t)
	posts := []domain.Post{
		imagePost("pics", "ok1", "first", srv.URL+"/media/1.jpg"),
		{ID: "gal", Title: "empty gallery", Subreddit: "pics", URL: "https://www.reddit.com/gallery/gal", IsGallery: true},
		imagePost("pics", "gone", "missing", srv.URL+"/missing/2.jpg"),
		imagePost("pics", "ok2", "second", srv.URL+"/media/3.png"),
	}
	fc := collector.NewFixtureClient().Add("pics", posts...)

	s, err := build(t, testConfig(t), fc).Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics"}, Count: 4})
	if err != nil {
		t.Fatal(err)
	}
	if s.Succeeded != 2 || s.Failed != 2 || s.Attempted != 4 {
		t.Fatalf("summary = %+v", s)
	}
	stages := map[string]domain.Stage{}
	for _, f := range s.Failures {
		stages[f.PostID] = f.Stage
	}
	if stages["gal"] != domain.StageResolve || stages["gone"] != domain.StageDownload {
		t.Errorf("failure stages = %v", stages)
	}
	entries, _ := os.ReadDir(filepath.Join(testConfigRoot(s), "pics"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".part-") {
			t.Errorf("staged file left behind: %s", e.Name())
		}
	}
}

// testConfigRoot recovers the storage root from a saved artifact path.
func testConfigRoot(s domain.RunSummary) string {
	if len(s.Artifacts) == 0 {
		return ""
	}
	return filepath.Dir(filepath.Dir(s.Artifacts[0].Path))
}

func TestRun_RetriesTransientDownloadErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	fc := collector.NewFixtureClient().Add("pics", imagePost("pics", "r1", "flaky", srv.URL+"/r1.jpg"))
	s, err := build(t, testConfig(t), fc).Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics"}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Succeeded != 1 || hits.Load() != 2 {
		t.Fatalf("succeeded=%d hits=%d failures=%v", s.Succeeded, hits.Load(), s.Failures)
	}
}

func TestRun_RerunDoesNotOverwrite(t *testing.T) {
	srv := mediaServer(t)
	cfg := testConfig(t)
	posts := collector.DemoPosts("pics", 2, srv.URL+"/media")
	req := domain.FetchRequest{Subreddits: []string{"pics"}, Count: 2}

	var runs [][]domain.SavedArtifact
	for i := 0; i < 2; i++ {
		fc := collector.NewFixtureClient().Add("pics", posts...)
		s, err := build(t, cfg, fc).Run(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		runs = append(runs, s.Artifacts)
	}

	first := make(map[string]bool)
	for _, a := range runs[0] {
		first[a.Path] = true
	}
	for _, a := range runs[1] {
		if first[a.Path] {
			t.Errorf("second run reused %q", a.Path)
		}
		if !strings.Contains(filepath.Base(a.Path), "(2)") {
			t.Errorf("second run path %q lacks disambiguator", a.Path)
		}
	}
}

func TestRun_CanceledMarksPostsSkipped(t *testing.T) {
	srv := mediaServer(t)
	fc := collector.NewFixtureClient().Add("pics", collector.DemoPosts("pics", 5, srv.URL+"/media")...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := build(t, testConfig(t), fc).Run(ctx, domain.FetchRequest{Subreddits: []string{"pics"}, Count: 5})
	if err != nil {
		t.Fatalf("cancel must not be a run error: %v", err)
	}
	if s.Succeeded != 0 || s.Skipped != 5 {
		t.Fatalf("summary = %+v", s)
	}
	for _, f := range s.Failures {
		if f.Stage != domain.StageCanceled {
			t.Errorf("stage = %s", f.Stage)
		}
	}
}

func TestRun_ConfigurationErrorBeforeFetch(t *testing.T) {
	fc := collector.NewFixtureClient()
	_, err := build(t, testConfig(t), fc).Run(context.Background(), domain.FetchRequest{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
	if len(fc.Queries()) != 0 {
		t.Error("fetch must not start on a configuration error")
	}
}

func TestRun_FailedSubredditIsRecorded(t *testing.T) {
	srv := mediaServer(t)
	fc := collector.NewFixtureClient().
		Add("pics", collector.DemoPosts("pics", 3, srv.URL+"/media")...).
		Fail("private", domain.ErrAuth)

	s, err := build(t, testConfig(t), fc).Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics", "private"}, Count: 2})
	if err != nil {
		t.Fatal(err)
	}
	if s.Succeeded != 2 {
		t.Errorf("Succeeded = %d", s.Succeeded)
	}
	if len(s.Failures) != 1 || s.Failures[0].Subreddit != "private" || s.Failures[0].Stage != domain.StageFetch {
		t.Errorf("failures = %+v", s.Failures)
	}
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []domain.RunSummary
}

func (r *fakeRecorder) RecordRun(ctx context.Context, s domain.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, s)
	return nil
}

func TestRun_ReportAndHistory(t *testing.T) {
	srv := mediaServer(t)
	cfg := testConfig(t)
	cfg.Storage.WriteReport = true
	fc := collector.NewFixtureClient().Add("pics", collector.DemoPosts("pics", 2, srv.URL+"/media")...)
	rec := &fakeRecorder{}

	s, err := build(t, cfg, fc).WithHistory(rec).Run(context.Background(), domain.FetchRequest{Subreddits: []string{"pics"}, Count: 2})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Storage.Root, storage.ReportDir, "report_"+s.RunID+".ndjson"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.Contains(lines[2], `"type":"summary"`) {
		t.Errorf("report lines = %q", lines)
	}
	if len(rec.runs) != 1 || rec.runs[0].RunID != s.RunID {
		t.Errorf("history = %+v", rec.runs)
	}
}

func TestRunAll(t *testing.T) {
	srv := mediaServer(t)
	fc := collector.NewFixtureClient().Add("pics", collector.DemoPosts("pics", 3, srv.URL+"/media")...)
	reqs := []domain.FetchRequest{
		{Subreddits: []string{"pics"}, Count: 1},
		{Subreddits: []string{"no such sub!"}},
		{Subreddits: []string{"pics"}, Count: 1, SearchTerms: []string{"#2"}},
	}

	out, err := build(t, testConfig(t), fc).RunAll(context.Background(), reqs)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("err = %v, want configuration error for request 2", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d summaries", len(out))
	}
	if out[1].Succeeded != 1 || !strings.Contains(out[1].Artifacts[0].Post.Title, "#2") {
		t.Errorf("second summary = %+v", out[1])
	}
}
