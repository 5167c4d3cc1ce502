package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/qepting91/reddit-media-dl/internal/collector"
	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/dashboard"
	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/history"
	"github.com/qepting91/reddit-media-dl/internal/ingest"
	"github.com/qepting91/reddit-media-dl/internal/pipeline"
	"github.com/qepting91/reddit-media-dl/internal/request"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	var code int
	switch args[0] {
	case "run":
		code = runCmd(args[1:])
	case "matrix":
		code = matrixCmd(args[1:])
	case "serve":
		code = serveCmd(args[1:])
	case "version":
		fmt.Printf("reddit-dl %s (built %s)\n", Version, BuildTime)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage(os.Stderr)
		code = 2
	}
	os.Exit(code)
}

// common holds the flags every subcommand accepts.
type common struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

func bindCommon(fs *flag.FlagSet) *common {
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "YAML config file (default $CONFIG_PATH)")
	fs.StringVar(&c.envFile, "env", ".env", "dotenv file loaded before the environment is read")
	fs.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL or info)")
	fs.StringVar(&c.logFormat, "log-format", "", "json or text (default $LOG_FORMAT or json)")
	return c
}

// setup loads the dotenv file and configuration and installs the default logger.
func (c *common) setup() (*config.Config, *slog.Logger, error) {
	// A missing .env is normal.
	_ = godotenv.Load(c.envFile)

	level := orEnv(c.logLevel, "LOG_LEVEL", "info")
	format := orEnv(c.logFormat, "LOG_FORMAT", "json")
	logger, err := newLogger(os.Stdout, level, format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(orEnv(c.configPath, "CONFIG_PATH", ""))
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	c := bindCommon(fs)
	rf := request.Bind(fs)
	fs.Usage = func() { printRunUsage(fs) }
	if err := fs.Parse(args); err != nil {
		return usageCode(err)
	}

	var (
		req domain.FetchRequest
		err error
	)
	if rf.Subs == "" {
		req, err = request.ParseCommand(fs.Args())
	} else {
		rf.Terms = fs.Args()
		req, err = request.FromFlags(*rf)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
		return 2
	}

	cfg, logger, err := c.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, cleanup, err := newOrchestrator(cfg, req.Subreddits, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return 1
	}
	defer cleanup()

	summary, err := orch.Run(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
		return 2
	}
	printSummary(os.Stdout, summary)
	return 0
}

func matrixCmd(args []string) int {
	fs := flag.NewFlagSet("matrix", flag.ContinueOnError)
	c := bindCommon(fs)
	batch := fs.String("batch", "", "CSV batch file with columns subreddits,time,sort,terms,count,type")
	subs := fs.String("subs", "", "Comma-separated subreddits")
	terms := fs.String("terms", "", "Comma-separated search terms")
	termsFile := fs.String("terms-file", "", "CSV file whose first column lists search terms")
	times := fs.String("times", "year,month", "Comma-separated time filters")
	count := fs.Int("count", 1, "Media files per request")
	mediaType := fs.String("type", string(domain.MediaAny), "Media type: image, video or any")
	fs.Usage = func() { printMatrixUsage(fs) }
	if err := fs.Parse(args); err != nil {
		return usageCode(err)
	}

	reqs, err := matrixRequests(*batch, *subs, *terms, *termsFile, *times, *count, domain.MediaType(*mediaType))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid matrix: %v\n", err)
		return 2
	}
	if len(reqs) == 0 {
		fmt.Fprintln(os.Stderr, "matrix produced no requests")
		return 2
	}

	cfg, logger, err := c.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, cleanup, err := newOrchestrator(cfg, allSubreddits(reqs), logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return 1
	}
	defer cleanup()

	logger.Info("Starting matrix", "requests", len(reqs))
	summaries, err := orch.RunAll(ctx, reqs)
	for _, s := range summaries {
		printSummary(os.Stdout, s)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "matrix incomplete: %v\n", err)
		if errors.Is(err, domain.ErrConfiguration) {
			return 2
		}
		return 1
	}
	return 0
}

func matrixRequests(batch, subs, terms, termsFile, times string, count int, mt domain.MediaType) ([]domain.FetchRequest, error) {
	if batch != "" {
		return ingest.LoadBatch(batch)
	}

	termList := request.SplitList(terms)
	if termsFile != "" {
		fromFile, err := ingest.LoadTerms(termsFile)
		if err != nil {
			return nil, err
		}
		termList = append(termList, fromFile...)
	}

	var filters []domain.TimeFilter
	for _, t := range request.SplitList(times) {
		tf, ok := domain.ParseTimeFilter(t)
		if !ok {
			return nil, &domain.ConfigError{Field: "time_filter", Reason: fmt.Sprintf("unknown value %q", t)}
		}
		filters = append(filters, tf)
	}
	return ingest.Matrix(request.SplitList(subs), termList, filters, count, mt)
}

func allSubreddits(reqs []domain.FetchRequest) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reqs {
		for _, s := range r.Subreddits {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// newOrchestrator wires the pipeline for cfg. cleanup closes the history store.
func newOrchestrator(cfg *config.Config, subs []string, logger *slog.Logger) (*pipeline.Orchestrator, func(), error) {
	clients, err := collector.New(cfg.Reddit, subs)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Collector initialized", "mode", cfg.Reddit.Mode)

	orch := pipeline.Build(cfg, clients, logger)
	cleanup := func() {}
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("Run history disabled", "path", cfg.History.Path, "error", err)
		} else {
			orch.WithHistory(store)
			cleanup = func() { store.Close() }
		}
	}
	return orch, cleanup, nil
}

func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	c := bindCommon(fs)
	addr := fs.String("addr", "", "Listen address (default :$PORT)")
	if err := fs.Parse(args); err != nil {
		return usageCode(err)
	}

	cfg, logger, err := c.setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	if cfg.History.Path == "" {
		fmt.Fprintln(os.Stderr, "serve needs HISTORY_PATH (or history.path in the config file)")
		return 2
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Error("Failed to open history", "error", err)
		return 1
	}
	defer store.Close()

	listen := *addr
	if listen == "" {
		listen = cfg.Dashboard.Address()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dashboard.Serve(ctx, listen, dashboard.NewRouter(store, logger), logger); err != nil {
		logger.Error("Dashboard failed", "error", err)
		return 1
	}
	return 0
}

func usageCode(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	return 2
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

// orEnv returns flagVal when set, else the environment value of key, else def.
func orEnv(flagVal, key, def string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
