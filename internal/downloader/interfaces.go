package downloader

import "context"

// ProbeResult contains information about a media URL.
type ProbeResult struct {
	ContentType   string
	ContentLength int64
	StatusCode    int
	Accessible    bool
	Error         string
}

// Muxer combines a video-only and an audio-only track into one file.
type Muxer interface {
	Merge(ctx context.Context, videoPath, audioPath, outPath string) error
}

// Compressor re-encodes a file so it fits under targetBytes.
type Compressor interface {
	Compress(ctx context.Context, inPath, outPath string, targetBytes int64) error
}
