// Package ffmpeg wraps the ffmpeg and ffprobe binaries for muxing and re-encoding.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotInstalled is returned when the ffmpeg binary cannot be found.
var ErrNotInstalled = errors.New("ffmpeg not found")

// audioBitrate is reserved for the audio track when computing a compression bitrate.
const audioBitrate = 128_000

// Processor runs ffmpeg. It implements downloader.Muxer and downloader.Compressor.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewProcessor locates ffmpeg (and ffprobe next to it, or in PATH).
func NewProcessor(ffmpegPath string) (*Processor, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotInstalled, ffmpegPath, err)
	}

	probe := filepath.Join(filepath.Dir(resolved), "ffprobe")
	if p, err := exec.LookPath(probe); err == nil {
		probe = p
	} else if p, err := exec.LookPath("ffprobe"); err == nil {
		probe = p
	} else {
		probe = ""
	}

	return &Processor{ffmpegPath: resolved, ffprobePath: probe}, nil
}

// MergeArgs returns the ffmpeg arguments that copy both streams into one container.
func MergeArgs(videoPath, audioPath, outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c", "copy",
		"-movflags", "+faststart",
		"-y", outPath,
	}
}

// Merge muxes a video-only and an audio-only file without re-encoding.
func (p *Processor) Merge(ctx context.Context, videoPath, audioPath, outPath string) error {
	if err := p.run(ctx, MergeArgs(videoPath, audioPath, outPath)); err != nil {
		return fmt.Errorf("mux: %w", err)
	}
	return nil
}

// CompressArgs returns the ffmpeg arguments for a two-track H.264/AAC re-encode at
// the given total bitrate in bits per second.
func CompressArgs(inPath, outPath string, videoBitrate int64) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-c:v", "libx264", "-preset", "veryfast",
		"-b:v", strconv.FormatInt(videoBitrate, 10),
		"-maxrate", strconv.FormatInt(videoBitrate, 10),
		"-bufsize", strconv.FormatInt(videoBitrate*2, 10),
		"-c:a", "aac", "-b:a", strconv.Itoa(audioBitrate),
		"-movflags", "+faststart",
		"-y", outPath,
	}
}

// VideoBitrate is the video bitrate that makes a file of the given duration fit in
// targetBytes, keeping 5% headroom for container overhead.
func VideoBitrate(targetBytes int64, durationSec float64) int64 {
	if durationSec <= 0 {
		return 0
	}
	total := int64(float64(targetBytes*8) * 0.95 / durationSec)
	v := total - audioBitrate
	if v < 100_000 {
		v = 100_000
	}
	return v
}

// Compress re-encodes inPath into outPath so it fits under targetBytes.
func (p *Processor) Compress(ctx context.Context, inPath, outPath string, targetBytes int64) error {
	dur, err := p.Duration(ctx, inPath)
	if err != nil {
		return err
	}
	rate := VideoBitrate(targetBytes, dur)
	if rate == 0 {
		return fmt.Errorf("compress %s: unknown duration", inPath)
	}
	if err := p.run(ctx, CompressArgs(inPath, outPath, rate)); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	return nil
}

// Duration returns the media duration in seconds as reported by ffprobe.
func (p *Processor) Duration(ctx context.Context, path string) (float64, error) {
	if p.ffprobePath == "" {
		return 0, errors.New("ffprobe not found")
	}
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(output)
}

func parseDuration(output []byte) (float64, error) {
	var parsed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	dur, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
	}
	return dur, nil
}

func (p *Processor) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return err
		}
		return fmt.Errorf("%w: %s", err, msg)
	}
	return nil
}
