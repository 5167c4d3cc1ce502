package downloader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

// fakeFetcher writes url-specific bytes or returns configured errors.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return 0, err
	}
	body := f.bodies[url]
	if err := os.WriteFile(dest, []byte(body), 0o644); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

type fakeMuxer struct {
	err       error
	tempDirs  []string
	callCount int
}

func (m *fakeMuxer) Merge(ctx context.Context, videoPath, audioPath, outPath string) error {
	m.callCount++
	m.tempDirs = append(m.tempDirs, filepath.Dir(outPath))
	if m.err != nil {
		return m.err
	}
	v, _ := os.ReadFile(videoPath)
	a, _ := os.ReadFile(audioPath)
	return os.WriteFile(outPath, append(v, a...), 0o644)
}

type fakeCompressor struct{ called bool }

func (c *fakeCompressor) Compress(ctx context.Context, in, out string, target int64) error {
	c.called = true
	return os.WriteFile(out, []byte("small"), 0o644)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMediaDownloader_Direct(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"u": "jpegbytes"}}
	md := NewMediaDownloader(f, WithLogger(quietLogger()))
	dest := filepath.Join(t.TempDir(), "a.jpg")

	n, err := md.Download(context.Background(), domain.ResolvedMedia{URL: "u", Kind: domain.KindImage}, dest)
	if err != nil || n != 9 {
		t.Fatalf("Download = %d, %v", n, err)
	}
}

func TestMediaDownloader_MergesTracks(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"v": "VIDEO", "a": "AUDIO"}}
	mux := &fakeMuxer{}
	md := NewMediaDownloader(f, WithMuxer(mux), WithLogger(quietLogger()))
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	m := domain.ResolvedMedia{URL: "v", AudioURL: "a", NeedsMerge: true, Kind: domain.KindVideo}
	n, err := md.Download(context.Background(), m, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "VIDEOAUDIO" || n != 10 {
		t.Errorf("merged = %q (%d bytes)", data, n)
	}
	if _, err := os.Stat(mux.tempDirs[0]); !os.IsNotExist(err) {
		t.Error("temp dir should be removed")
	}
}

func TestMediaDownloader_AudioFailureKeepsVideo(t *testing.T) {
	f := &fakeFetcher{
		bodies: map[string]string{"v": "VIDEO"},
		errs:   map[string]error{"a": &StatusError{Code: 403}},
	}
	mux := &fakeMuxer{}
	md := NewMediaDownloader(f, WithMuxer(mux), WithLogger(quietLogger()))
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	_, err := md.Download(context.Background(), domain.ResolvedMedia{URL: "v", AudioURL: "a", NeedsMerge: true}, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != "VIDEO" {
		t.Errorf("content = %q, want video only", data)
	}
	if mux.callCount != 0 {
		t.Error("muxer should not run without audio")
	}
}

func TestMediaDownloader_VideoFailure(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{"v": &StatusError{Code: 404}}}
	md := NewMediaDownloader(f, WithMuxer(&fakeMuxer{}), WithLogger(quietLogger()))
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	_, err := md.Download(context.Background(), domain.ResolvedMedia{URL: "v", AudioURL: "a", NeedsMerge: true}, dest)
	if !errors.Is(err, domain.ErrDownloadFailed) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("no file should be left at dest")
	}
}

func TestMediaDownloader_Compresses(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"v": "a very large video file"}}
	comp := &fakeCompressor{}
	md := NewMediaDownloader(f, WithCompressor(comp, 10), WithLogger(quietLogger()))
	dest := filepath.Join(t.TempDir(), "big.mp4")

	n, err := md.Download(context.Background(), domain.ResolvedMedia{URL: "v", Kind: domain.KindVideo}, dest)
	if err != nil {
		t.Fatal(err)
	}
	if !comp.called || n != 5 {
		t.Errorf("compressed = %v, size = %d", comp.called, n)
	}
	if data, _ := os.ReadFile(dest); string(data) != "small" {
		t.Errorf("content = %q", data)
	}
}
