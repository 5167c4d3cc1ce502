package pipeline

import (
	"log/slog"

	"github.com/qepting91/reddit-media-dl/internal/collector"
	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/downloader"
	"github.com/qepting91/reddit-media-dl/internal/ffmpeg"
	"github.com/qepting91/reddit-media-dl/internal/filter"
	"github.com/qepting91/reddit-media-dl/internal/resolver"
	"github.com/qepting91/reddit-media-dl/internal/storage"
)

// Build wires the production components for cfg around the given platform clients.
func Build(cfg *config.Config, clients collector.Clients, logger *slog.Logger) *Orchestrator {
	httpDL := downloader.NewHTTPDownloader(cfg.Download)
	httpDL.SetLogger(logger)

	dlOpts := []downloader.Option{downloader.WithLogger(logger)}
	proc, err := ffmpeg.NewProcessor(cfg.Media.FFmpegPath)
	if err != nil {
		logger.Warn("ffmpeg unavailable, videos with separate audio are saved without sound", "error", err)
	} else {
		dlOpts = append(dlOpts, downloader.WithMuxer(proc))
		if cfg.Media.Compress {
			dlOpts = append(dlOpts, downloader.WithCompressor(proc, cfg.Media.MaxFileSizeMB*1024*1024))
		}
	}

	return New(
		collector.NewFetcher(clients.Collector, cfg.Pipeline.Overfetch, logger),
		resolver.NewDefault(cfg, httpDL, clients.Gallery, logger),
		downloader.NewMediaDownloader(httpDL, dlOpts...),
		storage.NewSink(cfg.Storage, logger),
		Options{
			Workers: cfg.Pipeline.Workers,
			Retry:   downloader.RetryConfigFrom(cfg.Download),
			Filter: filter.Engine{
				Blacklist: cfg.Pipeline.Blacklist,
				MinScore:  cfg.Pipeline.MinScore,
			},
			WriteReport: cfg.Storage.WriteReport,
			RunTimeout:  cfg.Pipeline.RunTimeout,
		},
		logger,
	)
}
