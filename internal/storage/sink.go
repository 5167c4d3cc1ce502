// Package storage persists downloaded media, sidecars, manifests and run reports.
package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qepting91/reddit-media-dl/internal/config"
	"github.com/qepting91/reddit-media-dl/internal/domain"
)

const (
	manifestName  = "manifest.csv"
	sidecarExt    = ".json"
	stagingPrefix = ".part-"
)

var manifestHeader = []string{
	"id", "subreddit", "title", "author", "created_utc", "score", "kind", "gallery_index",
	"original_url", "resolved_url", "path", "size_bytes", "saved_at",
}

// Sidecar is the metadata record written next to every media file.
type Sidecar struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Author       string           `json:"author"`
	Subreddit    string           `json:"subreddit"`
	Permalink    string           `json:"permalink"`
	OriginalURL  string           `json:"original_url"`
	ResolvedURL  string           `json:"resolved_url"`
	CreatedUTC   time.Time        `json:"created_utc"`
	Score        int              `json:"score"`
	UpvoteRatio  float64          `json:"upvote_ratio"`
	NumComments  int              `json:"num_comments"`
	Flair        string           `json:"flair"`
	SavedPath    string           `json:"saved_path"`
	MediaKind    domain.MediaKind `json:"media_kind"`
	Strategy     string           `json:"strategy,omitempty"`
	GalleryIndex int              `json:"gallery_index,omitempty"`
	SizeBytes    int64            `json:"size_bytes"`
	SavedAt      time.Time        `json:"saved_at"`
}

// Sink writes artifacts under a root directory. Path choice, rename, sidecar
// and manifest append for one directory happen under that directory's lock.
type Sink struct {
	root   string
	cfg    config.StorageConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	dirLocks map[string]*sync.Mutex
	reserved map[string]bool
}

// NewSink creates a sink rooted at cfg.Root.
func NewSink(cfg config.StorageConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		root:     cfg.Root,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		dirLocks: make(map[string]*sync.Mutex),
		reserved: make(map[string]bool),
	}
}

// Root returns the sink's root directory.
func (s *Sink) Root() string { return s.root }

// Scope picks the destination directory name for a post.
func (s *Sink) Scope(req domain.FetchRequest, p domain.Post) string {
	if s.cfg.CollectionDirs {
		return CollectionLabel(req)
	}
	sub := strings.ToLower(p.Subreddit)
	if sub == "" && len(req.Subreddits) > 0 {
		sub = req.Subreddits[0]
	}
	return safeComponent(sub)
}

// Stage returns an unused hidden path in the scope directory for a download
// to write into. Save later renames it in place.
func (s *Sink) Stage(scope string, p domain.Post) (string, error) {
	dir := filepath.Join(s.root, scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory: %w", domain.ErrSinkWriteFailed, err)
	}
	return filepath.Join(dir, stagingPrefix+safeComponent(p.ID)+"-"+uuid.NewString()), nil
}

// Discard removes a staged file that will not be saved.
func (s *Sink) Discard(tmpPath string) {
	if tmpPath == "" {
		return
	}
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove staged file", "path", tmpPath, "error", err)
	}
}

// Save moves a staged download to its final name and records its metadata.
// It either completes the media file, sidecar and manifest row or leaves none.
func (s *Sink) Save(p domain.Post, m domain.ResolvedMedia, tmpPath string, size int64) (domain.SavedArtifact, error) {
	dir := filepath.Dir(tmpPath)
	lock := s.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	fail := func(err error) (domain.SavedArtifact, error) {
		return domain.SavedArtifact{}, fmt.Errorf("%w: %w", domain.ErrSinkWriteFailed, err)
	}

	name := BuildFilename(NameParams{
		Template:   s.cfg.FilenameTemplate,
		SlugMaxLen: s.cfg.SlugMaxLen,
		MaxLen:     s.cfg.MaxFilenameLen,
	}, p, m)
	path := UniquePath(filepath.Join(dir, name), s.taken)

	if err := os.Rename(tmpPath, path); err != nil {
		s.Discard(tmpPath)
		return fail(fmt.Errorf("move into place: %w", err))
	}
	s.reserve(path)

	art := domain.SavedArtifact{
		Post:    p,
		Media:   m,
		Path:    path,
		Size:    size,
		SavedAt: s.now().UTC(),
	}

	if s.cfg.WriteSidecars {
		sc := path + sidecarExt
		if err := writeJSONAtomic(sc, s.sidecar(art)); err != nil {
			s.rollback(path)
			return fail(fmt.Errorf("write sidecar: %w", err))
		}
		art.SidecarPath = sc
	}

	if s.cfg.WriteManifest {
		if err := s.appendManifest(dir, art); err != nil {
			s.rollback(path, art.SidecarPath)
			return fail(fmt.Errorf("append manifest: %w", err))
		}
	}

	s.logger.Debug("Artifact saved", "post_id", p.ID, "path", path, "size", size)
	return art, nil
}

func (s *Sink) dirLock(dir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.dirLocks[dir]
	if !ok {
		l = &sync.Mutex{}
		s.dirLocks[dir] = l
	}
	return l
}

// taken reports whether a candidate media path is unavailable.
func (s *Sink) taken(path string) bool {
	s.mu.Lock()
	r := s.reserved[path]
	s.mu.Unlock()
	return r || exists(path) || exists(path+sidecarExt)
}

func (s *Sink) reserve(path string) {
	s.mu.Lock()
	s.reserved[path] = true
	s.mu.Unlock()
}

func (s *Sink) rollback(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Rollback failed", "path", p, "error", err)
		}
	}
}

func (s *Sink) sidecar(a domain.SavedArtifact) Sidecar {
	p := a.Post
	return Sidecar{
		ID:           p.ID,
		Title:        p.Title,
		Author:       p.Author,
		Subreddit:    p.Subreddit,
		Permalink:    p.Permalink,
		OriginalURL:  p.URL,
		ResolvedURL:  a.Media.URL,
		CreatedUTC:   p.CreatedUTC,
		Score:        p.Score,
		UpvoteRatio:  p.UpvoteRatio,
		NumComments:  p.NumComments,
		Flair:        p.Flair,
		SavedPath:    a.Path,
		MediaKind:    a.Media.Kind,
		Strategy:     a.Media.Strategy,
		GalleryIndex: a.Media.GalleryIndex,
		SizeBytes:    a.Size,
		SavedAt:      a.SavedAt,
	}
}

func (s *Sink) appendManifest(dir string, a domain.SavedArtifact) error {
	f, err := os.OpenFile(filepath.Join(dir, manifestName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(s.root, a.Path)
	if err != nil {
		rel = a.Path
	}
	created := ""
	if !a.Post.CreatedUTC.IsZero() {
		created = a.Post.CreatedUTC.UTC().Format(time.RFC3339)
	}
	index := ""
	if a.Media.GalleryIndex > 0 {
		index = strconv.Itoa(a.Media.GalleryIndex)
	}

	return appendRecord(f, info.Size(), []string{
		a.Post.ID,
		a.Post.Subreddit,
		a.Post.Title,
		a.Post.Author,
		created,
		strconv.Itoa(a.Post.Score),
		string(a.Media.Kind),
		index,
		a.Post.URL,
		a.Media.URL,
		filepath.ToSlash(rel),
		strconv.FormatInt(a.Size, 10),
		a.SavedAt.Format(time.RFC3339),
	})
}

// manifestFile is the part of *os.File a manifest append needs.
type manifestFile interface {
	Write(p []byte) (int, error)
	Truncate(size int64) error
}

// appendRecord writes row, preceded by the header when size is 0, in a single write.
// On a failed write the file is truncated back to size so no torn row remains.
func appendRecord(f manifestFile, size int64, row []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if size == 0 {
		w.Write(manifestHeader)
	}
	w.Write(row)
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		if terr := f.Truncate(size); terr != nil {
			return errors.Join(err, fmt.Errorf("truncate manifest: %w", terr))
		}
		return err
	}
	return nil
}

// writeJSONAtomic writes v to path through a temp file in the same directory.
// An existing file at path is never replaced.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if exists(path) {
		return fmt.Errorf("%s: %w", path, os.ErrExist)
	}

	dir, name := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Link fails if path appeared meanwhile.
	return os.Link(tmpName, path)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
