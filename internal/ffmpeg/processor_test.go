package ffmpeg

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeArgs(t *testing.T) {
	got := strings.Join(MergeArgs("v.mp4", "a.mp4", "out.mp4"), " ")
	for _, want := range []string{"-i v.mp4", "-i a.mp4", "-c copy", "-map 0:v:0", "-map 1:a:0", "-y out.mp4"} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
}

func TestVideoBitrate(t *testing.T) {
	// 10 MB over 100s: 800k total, 95% headroom, minus 128k audio.
	if got := VideoBitrate(10_000_000, 100); got != 632_000 {
		t.Errorf("VideoBitrate = %d, want 632000", got)
	}
	if got := VideoBitrate(1000, 3600); got != 100_000 {
		t.Errorf("floor not applied: %d", got)
	}
	if got := VideoBitrate(1000, 0); got != 0 {
		t.Errorf("zero duration = %d", got)
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration([]byte(`{"format":{"duration":"12.500000"}}`))
	if err != nil || d != 12.5 {
		t.Errorf("parseDuration = %v, %v", d, err)
	}
	if _, err := parseDuration([]byte(`{"format":{}}`)); err == nil {
		t.Error("expected error for missing duration")
	}
}

func TestNewProcessor_Missing(t *testing.T) {
	_, err := NewProcessor(filepath.Join(t.TempDir(), "no-ffmpeg-here"))
	if !errors.Is(err, ErrNotInstalled) {
		t.Errorf("err = %v, want ErrNotInstalled", err)
	}
}

func TestMerge_RealBinary(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	p, err := NewProcessor("ffmpeg")
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	video := filepath.Join(dir, "v.mp4")
	audio := filepath.Join(dir, "a.m4a")
	gen := func(args ...string) {
		if out, err := exec.Command(p.ffmpegPath, args...).CombinedOutput(); err != nil {
			t.Skipf("cannot generate test media: %v: %s", err, out)
		}
	}
	gen("-f", "lavfi", "-i", "color=c=black:s=64x64:d=1", "-c:v", "libx264", "-y", video)
	gen("-f", "lavfi", "-i", "sine=d=1", "-c:a", "aac", "-y", audio)

	out := filepath.Join(dir, "merged.mp4")
	if err := p.Merge(context.Background(), video, audio, out); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		t.Fatalf("merged output missing: %v", err)
	}
}
