// Package dashboard serves charts of the run history.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/qepting91/reddit-media-dl/internal/history"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// Source is the read side of the history store.
type Source interface {
	RecentRuns(ctx context.Context, n int) ([]history.Run, error)
	SubredditTotals(ctx context.Context) ([]history.Total, error)
	KindTotals(ctx context.Context) ([]history.Total, error)
}

type server struct {
	src    Source
	logger *slog.Logger
}

// NewRouter creates the dashboard routes.
func NewRouter(src Source, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{src: src, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", s.index)
	r.Get("/api/runs", s.runs)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := s.src.SubredditTotals(ctx)
	if err != nil {
		s.fail(w, "load subreddit totals", err)
		return
	}
	kinds, err := s.src.KindTotals(ctx)
	if err != nil {
		s.fail(w, "load kind totals", err)
		return
	}
	runs, err := s.src.RecentRuns(ctx, defaultRunLimit)
	if err != nil {
		s.fail(w, "load runs", err)
		return
	}

	page := components.NewPage()
	page.PageTitle = "reddit-media-dl"
	page.AddCharts(
		totalsPie("Artifacts per Subreddit", subs),
		totalsPie("Artifacts per Kind", kinds),
		runsBar(runs),
	)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		s.logger.Warn("Render failed", "error", err)
	}
}

func totalsPie(title string, totals []history.Total) *charts.Pie {
	var (
		items []opts.PieData
		count int
		bytes int64
	)
	for _, t := range totals {
		items = append(items, opts.PieData{Name: t.Key, Value: t.Count})
		count += t.Count
		bytes += t.Bytes
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%s files, %s", humanize.Comma(int64(count)), humanize.Bytes(uint64(bytes))),
		}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	pie.AddSeries("Artifacts", items)
	return pie
}

// runsBar shows saved, failed and skipped posts per run, oldest on the left.
func runsBar(runs []history.Run) *charts.Bar {
	var (
		x                      []string
		saved, failed, skipped []opts.BarData
	)
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		x = append(x, r.StartedAt.Local().Format("01-02 15:04"))
		saved = append(saved, opts.BarData{Value: r.Succeeded})
		failed = append(failed, opts.BarData{Value: r.Failed})
		skipped = append(skipped, opts.BarData{Value: r.Skipped})
	}

	subtitle := "no runs yet"
	if len(runs) > 0 {
		subtitle = "last run " + humanize.Time(runs[0].StartedAt)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Recent Runs", Subtitle: subtitle}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
	)
	bar.SetXAxis(x).
		AddSeries("Saved", saved).
		AddSeries("Failed", failed).
		AddSeries("Skipped", skipped)
	return bar
}

type runsResponse struct {
	Runs       []history.Run   `json:"runs"`
	Subreddits []history.Total `json:"subreddits"`
	Kinds      []history.Total `json:"kinds"`
}

func (s *server) runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	ctx := r.Context()
	var resp runsResponse
	var err error
	if resp.Runs, err = s.src.RecentRuns(ctx, limit); err != nil {
		s.fail(w, "load runs", err)
		return
	}
	if resp.Subreddits, err = s.src.SubredditTotals(ctx); err != nil {
		s.fail(w, "load subreddit totals", err)
		return
	}
	if resp.Kinds, err = s.src.KindTotals(ctx); err != nil {
		s.fail(w, "load kind totals", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Encode failed", "error", err)
	}
}

func (s *server) fail(w http.ResponseWriter, what string, err error) {
	s.logger.Error("Dashboard query failed", "query", what, "error", err)
	http.Error(w, "history unavailable", http.StatusInternalServerError)
}

// Serve runs handler on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Dashboard", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown dashboard: %w", err)
	}
	logger.Info("Dashboard stopped")
	return nil
}
