// Package pipeline runs fetch, filter, resolve, download and save for one request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/qepting91/reddit-media-dl/internal/collector"
	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/downloader"
	"github.com/qepting91/reddit-media-dl/internal/filter"
	"github.com/qepting91/reddit-media-dl/internal/storage"
)

// Fetcher loads and merges subreddit listings.
type Fetcher interface {
	Fetch(ctx context.Context, req domain.FetchRequest) collector.FetchResult
}

// Resolver finds the media location of a post.
type Resolver interface {
	Resolve(ctx context.Context, p domain.Post, hint domain.MediaType) (domain.ResolvedMedia, error)
}

// Downloader makes one attempt to place media bytes at dest.
type Downloader interface {
	Download(ctx context.Context, m domain.ResolvedMedia, dest string) (int64, error)
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, s domain.RunSummary) error
}

// Options tunes an Orchestrator.
type Options struct {
	Workers     int
	Retry       downloader.RetryConfig
	Filter      filter.Engine
	WriteReport bool
	RunTimeout  time.Duration
}

// Orchestrator owns the RunSummary of each run. Units of work never touch it;
// they return a unitResult that Run folds in, in input order.
type Orchestrator struct {
	fetcher    Fetcher
	resolver   Resolver
	downloader Downloader
	sink       *storage.Sink
	history    Recorder
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an orchestrator.
func New(f Fetcher, r Resolver, d Downloader, sink *storage.Sink, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	return &Orchestrator{
		fetcher:    f,
		resolver:   r,
		downloader: d,
		sink:       sink,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// WithHistory records every finished run in h.
func (o *Orchestrator) WithHistory(h Recorder) *Orchestrator {
	o.history = h
	return o
}

type unitResult struct {
	post     domain.Post
	artifact *domain.SavedArtifact
	stage    domain.Stage
	err      error
}

func (u unitResult) outcome() domain.Outcome {
	out := domain.Outcome{
		PostID:    u.post.ID,
		Subreddit: u.post.Subreddit,
		Title:     u.post.Title,
		URL:       u.post.URL,
	}
	switch {
	case u.artifact != nil:
		out.Status = domain.StatusSaved
		out.Path = u.artifact.Path
	case u.stage == domain.StageCanceled || errors.Is(u.err, domain.ErrDuplicateMedia):
		out.Status = domain.StatusSkipped
		out.Stage = u.stage
		out.Reason = u.err.Error()
	default:
		out.Status = domain.StatusFailed
		out.Stage = u.stage
		out.Reason = u.err.Error()
	}
	return out
}

// Run executes one request. The only error it returns is a configuration
// error, before anything is fetched; every other failure lands in the summary.
func (o *Orchestrator) Run(ctx context.Context, req domain.FetchRequest) (domain.RunSummary, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.RunSummary{Request: req}, err
	}

	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		Request:   req,
		StartedAt: o.now().UTC(),
	}
	logger := o.logger.With("run_id", summary.RunID)
	logger.Info("Starting run", "request", req.Label())

	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	fetched := o.fetcher.Fetch(ctx, req)
	summary.Fetched = len(fetched.Posts)
	summary.Notes = append(summary.Notes, fetched.Notes...)
	for _, se := range fetched.Failed {
		summary.Failures = append(summary.Failures, domain.Failure{
			Subreddit: se.Subreddit,
			Stage:     domain.StageFetch,
			Reason:    se.Err.Error(),
		})
	}

	eligible, stats := o.opts.Filter.Apply(fetched.Posts, req)
	summary.Eligible = len(eligible)
	if stats.Total() > 0 {
		summary.Notef("filtered: %s", stats)
	}

	var (
		outcomes chan domain.Outcome
		finals   chan domain.RunSummary
		report   *storage.ReportWriter
		reportWg sync.WaitGroup
	)
	if o.opts.WriteReport {
		outcomes = make(chan domain.Outcome, o.opts.Workers)
		finals = make(chan domain.RunSummary, 1)
		report = storage.NewReportWriter(o.sink.Root(), summary.RunID, logger)
		reportWg.Add(1)
		go report.Start(&reportWg, outcomes, finals)
	}

	for _, r := range o.process(ctx, req, eligible, outcomes, logger) {
		if r.artifact != nil {
			summary.RecordSaved(*r.artifact)
			continue
		}
		summary.RecordFailure(r.post, r.stage, r.err)
	}

	switch {
	case summary.Eligible < req.Count:
		summary.Notef("shortfall: %d of %d requested posts were eligible", summary.Eligible, req.Count)
	case summary.Succeeded < req.Count:
		summary.Notef("shortfall: saved %d of %d requested posts", summary.Succeeded, req.Count)
	}
	summary.FinishedAt = o.now().UTC()

	if report != nil {
		close(outcomes)
		finals <- summary
		close(finals)
		reportWg.Wait()
	}

	if o.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := o.history.RecordRun(hctx, summary); err != nil {
			logger.Warn("Failed to record run history", "error", err)
		}
		cancel()
	}

	logger.Info("Run complete",
		"fetched", summary.Fetched,
		"eligible", summary.Eligible,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"bytes", humanize.Bytes(uint64(summary.TotalBytes())),
		"duration", summary.Duration().Round(time.Millisecond),
	)
	return summary, nil
}

// RunAll executes requests one after another. Invalid requests are reported in
// the joined error and skipped; a canceled context stops the batch.
func (o *Orchestrator) RunAll(ctx context.Context, reqs []domain.FetchRequest) ([]domain.RunSummary, error) {
	var (
		out  []domain.RunSummary
		errs []error
	)
	for i, req := range reqs {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("batch stopped before request %d: %w", i+1, ctx.Err()))
			break
		}
		s, err := o.Run(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("request %d: %w", i+1, err))
			continue
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}

// process runs the units on a bounded pool. Results keep the order of posts.
func (o *Orchestrator) process(ctx context.Context, req domain.FetchRequest, posts []domain.Post, outcomes chan<- domain.Outcome, logger *slog.Logger) []unitResult {
	results := make([]unitResult, len(posts))
	claims := filter.NewURLSet()
	jobs := make(chan int)

	emit := func(r unitResult) {
		if outcomes != nil {
			outcomes <- r.outcome()
		}
	}

	var wg sync.WaitGroup
	for range o.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.processPost(ctx, req, posts[i], claims, logger)
				emit(results[i])
			}
		}()
	}

	dispatched := 0
dispatch:
	for i := range posts {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			dispatched = i + 1
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(posts); i++ {
		results[i] = unitResult{post: posts[i], stage: domain.StageCanceled, err: domain.ErrCanceled}
		emit(results[i])
	}
	if skipped := len(posts) - dispatched; skipped > 0 {
		logger.Info("Run canceled, posts not started", "count", skipped)
	}
	return results
}

// processPost is one isolated unit: resolve, claim, stage, download, save.
func (o *Orchestrator) processPost(ctx context.Context, req domain.FetchRequest, p domain.Post, claims *filter.URLSet, logger *slog.Logger) unitResult {
	log := logger.With("post_id", p.ID, "sub", p.Subreddit)
	fail := func(stage domain.Stage, err error) unitResult {
		if stage != domain.StageSave && ctx.Err() != nil {
			stage, err = domain.StageCanceled, fmt.Errorf("%w: %w", domain.ErrCanceled, err)
		}
		log.Warn("Post failed", "stage", stage, "error", err)
		return unitResult{post: p, stage: stage, err: domain.NewPostError(p.ID, stage, err)}
	}

	media, err := o.resolver.Resolve(ctx, p, req.MediaType)
	if err != nil {
		return fail(domain.StageResolve, err)
	}

	ok, owner, err := claims.Claim(ctx, media.URL, p.ID)
	if err != nil {
		return fail(domain.StageDedup, err)
	}
	if !ok {
		log.Info("Duplicate media skipped", "owner", owner, "url", media.URL)
		return unitResult{
			post:  p,
			stage: domain.StageDedup,
			err:   domain.NewPostError(p.ID, domain.StageDedup, fmt.Errorf("%w: already saved by %s", domain.ErrDuplicateMedia, owner)),
		}
	}

	saved := false
	defer func() { claims.Release(media.URL, p.ID, saved) }()

	tmp, err := o.sink.Stage(o.sink.Scope(req, p), p)
	if err != nil {
		return fail(domain.StageSave, err)
	}

	size, err := downloader.RetryWithCheck(ctx, o.opts.Retry, func() (int64, error) {
		o.sink.Discard(tmp)
		return o.downloader.Download(ctx, media, tmp)
	}, downloader.IsRetryable)
	if err != nil {
		o.sink.Discard(tmp)
		return fail(domain.StageDownload, err)
	}

	// Save does not observe ctx so an in-flight save always completes.
	art, err := o.sink.Save(p, media, tmp, size)
	if err != nil {
		return fail(domain.StageSave, err)
	}
	saved = true
	log.Info("Saved", "path", art.Path, "size", humanize.Bytes(uint64(size)), "strategy", media.Strategy)
	return unitResult{post: p, artifact: &art}
}
