package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"COLLECTOR_MODE", "REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "REDDIT_USER_AGENT",
		"STORAGE_ROOT", "FILENAME_TEMPLATE", "WORKER_COUNT", "OVERFETCH_FACTOR",
		"DOWNLOAD_TIMEOUT", "DOWNLOAD_MAX_ATTEMPTS", "HISTORY_PATH", "PORT",
		"TITLE_BLACKLIST", "MIN_SCORE",
	} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Reddit.Mode != "public" {
		t.Errorf("Reddit.Mode = %q, want public", cfg.Reddit.Mode)
	}
	if cfg.Storage.FilenameTemplate != "{created}_{id}_{slug}{ext}" {
		t.Errorf("FilenameTemplate = %q", cfg.Storage.FilenameTemplate)
	}
	if !cfg.Storage.WriteManifest || !cfg.Storage.WriteSidecars {
		t.Error("manifest and sidecars should be enabled by default")
	}
	if cfg.Media.Compress {
		t.Error("compression should be disabled by default")
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Pipeline.Workers)
	}
	if cfg.Download.Timeout != 5*time.Minute {
		t.Errorf("Download.Timeout = %v, want 5m", cfg.Download.Timeout)
	}
	if cfg.History.Path != "" {
		t.Errorf("History.Path = %q, want empty", cfg.History.Path)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
reddit:
  mode: mock
storage:
  root: /tmp/media
  collection_dirs: true
pipeline:
  workers: 8
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("TITLE_BLACKLIST", "spoiler,nsfw")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Reddit.Mode != "mock" {
		t.Errorf("Mode = %q, want mock from yaml", cfg.Reddit.Mode)
	}
	if cfg.Storage.Root != "/tmp/media" {
		t.Errorf("Root = %q, want /tmp/media", cfg.Storage.Root)
	}
	if !cfg.Storage.CollectionDirs {
		t.Error("CollectionDirs should come from yaml")
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("Workers = %d, want env override 2", cfg.Pipeline.Workers)
	}
	if len(cfg.Pipeline.Blacklist) != 2 || cfg.Pipeline.Blacklist[1] != "nsfw" {
		t.Errorf("Blacklist = %v", cfg.Pipeline.Blacklist)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Reddit:   RedditConfig{Mode: "public", UserAgent: "ua"},
			Storage:  StorageConfig{Root: "out", FilenameTemplate: "{id}{ext}"},
			Pipeline: PipelineConfig{Workers: 1, Overfetch: 1},
			Download: DownloadConfig{MaxAttempts: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "api without creds", mutate: func(c *Config) { c.Reddit.Mode = "api" }, wantErr: "REDDIT_CLIENT_ID"},
		{name: "unknown mode", mutate: func(c *Config) { c.Reddit.Mode = "scrape" }, wantErr: "unknown COLLECTOR_MODE"},
		{name: "no root", mutate: func(c *Config) { c.Storage.Root = "" }, wantErr: "STORAGE_ROOT"},
		{name: "template without id", mutate: func(c *Config) { c.Storage.FilenameTemplate = "{slug}{ext}" }, wantErr: "{id}"},
		{name: "template without ext", mutate: func(c *Config) { c.Storage.FilenameTemplate = "{id}.bin" }, wantErr: "{ext}"},
		{name: "zero workers", mutate: func(c *Config) { c.Pipeline.Workers = 0 }, wantErr: "WORKER_COUNT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
