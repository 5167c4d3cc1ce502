package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// Fetcher retrieves a single URL into a new file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// MediaDownloader turns a resolved media location into bytes on disk, merging
// split video and audio tracks when needed.
type MediaDownloader struct {
	fetcher    Fetcher
	muxer      Muxer
	compressor Compressor
	maxBytes   int64
	logger     *slog.Logger
}

// Option configures a MediaDownloader.
type Option func(*MediaDownloader)

// WithMuxer enables merging split tracks. Without a muxer the video track is kept alone.
func WithMuxer(m Muxer) Option {
	return func(md *MediaDownloader) { md.muxer = m }
}

// WithCompressor re-encodes files larger than maxBytes.
func WithCompressor(c Compressor, maxBytes int64) Option {
	return func(md *MediaDownloader) {
		md.compressor = c
		md.maxBytes = maxBytes
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(md *MediaDownloader) { md.logger = l }
}

// NewMediaDownloader creates a downloader on top of f.
func NewMediaDownloader(f Fetcher, opts ...Option) *MediaDownloader {
	md := &MediaDownloader{fetcher: f, logger: slog.Default()}
	for _, o := range opts {
		o(md)
	}
	return md
}

// Download makes one attempt to place the bytes of m at dest and returns the file size.
// Errors wrap domain.ErrDownloadFailed.
func (md *MediaDownloader) Download(ctx context.Context, m domain.ResolvedMedia, dest string) (int64, error) {
	var (
		size int64
		err  error
	)
	if m.NeedsMerge && m.AudioURL != "" {
		size, err = md.downloadMerged(ctx, m, dest)
	} else {
		size, err = md.fetcher.Fetch(ctx, m.URL, dest)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}

	if md.compressor != nil && md.maxBytes > 0 && size > md.maxBytes && m.Kind == domain.KindVideo {
		size = md.compress(ctx, dest, size)
	}
	return size, nil
}

func (md *MediaDownloader) downloadMerged(ctx context.Context, m domain.ResolvedMedia, dest string) (int64, error) {
	// Tracks and the merge output live in a private directory that is always removed.
	tmpDir, err := os.MkdirTemp("", "reddit-dl-mux-*")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	videoPath := filepath.Join(tmpDir, "video.mp4")
	audioPath := filepath.Join(tmpDir, "audio.mp4")
	mergedPath := filepath.Join(tmpDir, "merged.mp4")

	if _, err := md.fetcher.Fetch(ctx, m.URL, videoPath); err != nil {
		return 0, fmt.Errorf("video track: %w", err)
	}

	merged := false
	if md.muxer == nil {
		md.logger.Warn("no muxer configured, keeping video only", "post_id", m.PostID)
	} else if _, err := md.fetcher.Fetch(ctx, m.AudioURL, audioPath); err != nil {
		md.logger.Warn("audio track unavailable, keeping video only", "post_id", m.PostID, "error", err)
	} else if err := md.muxer.Merge(ctx, videoPath, audioPath, mergedPath); err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		md.logger.Warn("mux failed, keeping video only", "post_id", m.PostID, "error", err)
	} else {
		merged = true
	}

	src := videoPath
	if merged {
		src = mergedPath
	}
	return moveFile(src, dest)
}

func (md *MediaDownloader) compress(ctx context.Context, path string, size int64) int64 {
	out := path + ".compressed" + filepath.Ext(path)
	if err := md.compressor.Compress(ctx, path, out, md.maxBytes); err != nil {
		os.Remove(out)
		md.logger.Warn("compression failed, keeping original", "path", path, "error", err)
		return size
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() >= size {
		os.Remove(out)
		return size
	}
	if err := os.Rename(out, path); err != nil {
		os.Remove(out)
		return size
	}
	md.logger.Info("compressed media",
		"path", path,
		"before", humanize.Bytes(uint64(size)),
		"after", humanize.Bytes(uint64(info.Size())),
	)
	return info.Size()
}

// moveFile renames src to dest, which must not exist, copying across filesystems.
func moveFile(src, dest string) (int64, error) {
	if _, err := os.Lstat(dest); err == nil {
		return 0, fmt.Errorf("move %s: %w", dest, os.ErrExist)
	}
	if err := os.Rename(src, dest); err == nil {
		info, err := os.Stat(dest)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return 0, errors.Join(errors.New("copy merged file"), err)
	}
	return n, nil
}
