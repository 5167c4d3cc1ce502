package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is loaded once and never mutated.
type Config struct {
	Reddit    RedditConfig    `yaml:"reddit"`
	Storage   StorageConfig   `yaml:"storage"`
	Download  DownloadConfig  `yaml:"download"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Media     MediaConfig     `yaml:"media"`
	History   HistoryConfig   `yaml:"history"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// RedditConfig selects and configures the platform client.
type RedditConfig struct {
	Mode         string        `yaml:"mode" envconfig:"COLLECTOR_MODE"`
	ClientID     string        `yaml:"client_id" envconfig:"REDDIT_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" envconfig:"REDDIT_CLIENT_SECRET"`
	Username     string        `yaml:"username" envconfig:"REDDIT_USERNAME"`
	Password     string        `yaml:"password" envconfig:"REDDIT_PASSWORD"`
	UserAgent    string        `yaml:"user_agent" envconfig:"REDDIT_USER_AGENT"`
	BaseURL      string        `yaml:"base_url" envconfig:"REDDIT_BASE_URL"`
	Interval     time.Duration `yaml:"interval" envconfig:"REDDIT_REQUEST_INTERVAL"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"REDDIT_TIMEOUT"`
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	Root             string `yaml:"root" envconfig:"STORAGE_ROOT"`
	FilenameTemplate string `yaml:"filename_template" envconfig:"FILENAME_TEMPLATE"`
	SlugMaxLen       int    `yaml:"slug_max_len" envconfig:"SLUG_MAX_LEN"`
	MaxFilenameLen   int    `yaml:"max_filename_len" envconfig:"MAX_FILENAME_LEN"`
	WriteSidecars    bool   `yaml:"write_sidecars" envconfig:"WRITE_SIDECARS"`
	WriteManifest    bool   `yaml:"write_manifest" envconfig:"WRITE_MANIFEST"`
	WriteReport      bool   `yaml:"write_report" envconfig:"WRITE_REPORT"`
	CollectionDirs   bool   `yaml:"collection_dirs" envconfig:"COLLECTION_DIRS"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" envconfig:"DOWNLOAD_PROBE_TIMEOUT"`
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
}

// PipelineConfig holds orchestration configuration.
type PipelineConfig struct {
	Workers    int           `yaml:"workers" envconfig:"WORKER_COUNT"`
	Overfetch  int           `yaml:"overfetch" envconfig:"OVERFETCH_FACTOR"`
	RunTimeout time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT"`
	// Blacklist drops posts whose title contains any of these words.
	Blacklist []string `yaml:"blacklist" envconfig:"TITLE_BLACKLIST"`
	MinScore  int      `yaml:"min_score" envconfig:"MIN_SCORE"`
}

// MediaConfig holds external tool configuration.
type MediaConfig struct {
	FFmpegPath     string        `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	YtDLPPath      string        `yaml:"ytdlp_path" envconfig:"YTDLP_PATH"`
	ExtractTimeout time.Duration `yaml:"extract_timeout" envconfig:"EXTRACT_TIMEOUT"`
	Compress       bool          `yaml:"compress" envconfig:"ENABLE_COMPRESSION"`
	MaxFileSizeMB  int64         `yaml:"max_file_size_mb" envconfig:"MAX_FILE_SIZE_MB"`
}

// HistoryConfig holds run history persistence. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path" envconfig:"HISTORY_PATH"`
}

// DashboardConfig holds the history dashboard server configuration.
type DashboardConfig struct {
	Port string `yaml:"port" envconfig:"PORT"`
}

// Default returns the built-in configuration that file and environment values override.
func Default() Config {
	return Config{
		Reddit: RedditConfig{
			Mode:      "public",
			UserAgent: "reddit-media-dl/1.0",
			BaseURL:   "https://www.reddit.com",
			Interval:  2 * time.Second,
			Timeout:   15 * time.Second,
		},
		Storage: StorageConfig{
			Root:             "downloads",
			FilenameTemplate: "{created}_{id}_{slug}{ext}",
			SlugMaxLen:       80,
			MaxFilenameLen:   200,
			WriteSidecars:    true,
			WriteManifest:    true,
			WriteReport:      true,
		},
		Download: DownloadConfig{
			Timeout:       5 * time.Minute,
			ProbeTimeout:  10 * time.Second,
			MaxAttempts:   3,
			RetryDelay:    2 * time.Second,
			MaxRetryDelay: 30 * time.Second,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Pipeline: PipelineConfig{
			Workers:   4,
			Overfetch: 5,
		},
		Media: MediaConfig{
			FFmpegPath:     "ffmpeg",
			YtDLPPath:      "yt-dlp",
			ExtractTimeout: 10 * time.Minute,
			MaxFileSizeMB:  5000,
		},
		Dashboard: DashboardConfig{Port: "8080"},
	}
}

// Load reads configuration from file and environment variables.
// Environment variables override file values, file values override Default.
func Load(configPath string) (*Config, error) {
	def := Default()
	cfg := &def

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	switch c.Reddit.Mode {
	case "api":
		if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
			return fmt.Errorf("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required in api mode")
		}
	case "public":
		if c.Reddit.UserAgent == "" {
			return fmt.Errorf("REDDIT_USER_AGENT is required for public mode")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'api', 'public', or 'mock')", c.Reddit.Mode)
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("STORAGE_ROOT is required")
	}
	if !strings.Contains(c.Storage.FilenameTemplate, "{id}") {
		return fmt.Errorf("FILENAME_TEMPLATE must contain {id}")
	}
	if !strings.HasSuffix(c.Storage.FilenameTemplate, "{ext}") {
		return fmt.Errorf("FILENAME_TEMPLATE must end with {ext}")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}
	if c.Pipeline.Overfetch < 1 {
		return fmt.Errorf("OVERFETCH_FACTOR must be positive")
	}
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("DOWNLOAD_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// Address returns the dashboard listen address.
func (c *DashboardConfig) Address() string {
	return ":" + c.Port
}
