package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	TempDir    string `toml:"temp_dir"`
	WorkDir    string `toml:"work_dir"`
	LogDir     string `toml:"log_dir"`
	ContentDir string `toml:"content_dir"`
}

// Queues holds the declarative queue concurrency specification.
type Queues struct {
	Spec string `toml:"spec"`
}

// Workflow contains dispatcher timing, lease, and retry settings.
type Workflow struct {
	PollIntervalMillis    int    `toml:"poll_interval_ms"`
	MaxPollIntervalMillis int    `toml:"max_poll_interval_ms"`
	ErrorRetryInterval    int    `toml:"error_retry_interval"`
	HeartbeatInterval     int    `toml:"heartbeat_interval"`
	LeaseTimeout          int    `toml:"lease_timeout"`
	DrainTimeout          int    `toml:"drain_timeout"`
	RetryBackoff          int    `toml:"retry_backoff"`
	MaxRetryBackoff       int    `toml:"max_retry_backoff"`
	MaxAttempts           int    `toml:"max_attempts" validate:"gte=1"`
	ErrorState            string `toml:"error_state"`
	TransitionRetries     int    `toml:"transition_retries" validate:"gte=0"`
}

// Backend selects the content service implementation.
type Backend struct {
	Kind           string `toml:"kind" validate:"oneof=local remote"`
	URL            string `toml:"url" validate:"omitempty,url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage configures where the local backend keeps primary and supplementary content.
type Storage struct {
	Kind      string `toml:"kind" validate:"oneof=fs s3"`
	Bucket    string `toml:"bucket" validate:"required_if=Kind s3"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PathStyle bool   `toml:"path_style"`
}

// LLM contains connection settings for completion and embedding calls.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	EmbeddingURL   string `toml:"embedding_url"`
	EmbeddingModel string `toml:"embedding_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Vector configures the pgvector embedding store.
type Vector struct {
	DSN        string `toml:"dsn"`
	Table      string `toml:"table"`
	Dimensions int    `toml:"dimensions" validate:"gte=1"`
}

// Media contains external tool and media activity settings.
type Media struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	MaxThumbnails  int    `toml:"max_thumbnails" validate:"gte=1"`
	ThumbnailWidth int    `toml:"thumbnail_width" validate:"gte=16"`
	MinFreeGiB     int    `toml:"min_free_gib" validate:"gte=0"`
}

// Metrics configures the health and metrics listener.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for weft.
//
// Configuration sections by subsystem:
//   - Paths: state, temp, work, log, and content directories
//   - Queues: queue concurrency specification
//   - Workflow: dispatcher polling, leases, drain, and retries
//   - Backend: local SQLite store or remote content service
//   - Storage: content blob storage (filesystem or S3)
//   - LLM: completion and embedding provider
//   - Vector: pgvector embedding store
//   - Media: ffmpeg tooling and media activity limits
//   - Metrics: health and metrics listener
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Queues   Queues   `toml:"queues"`
	Workflow Workflow `toml:"workflow"`
	Backend  Backend  `toml:"backend"`
	Storage  Storage  `toml:"storage"`
	LLM      LLM      `toml:"llm"`
	Vector   Vector   `toml:"vector"`
	Media    Media    `toml:"media"`
	Metrics  Metrics  `toml:"metrics"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("weft.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.TempDir, c.Paths.LogDir}
	if c.Storage.Kind == StorageFS {
		dirs = append(dirs, c.Paths.ContentDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file backing the local content store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "weft.db")
}

// LockPath returns the single-instance daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "weftd.lock")
}

// PollInterval is the initial idle wait between claim attempts.
func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMillis) * time.Millisecond
}

// MaxPollInterval caps the idle backoff between claim attempts.
func (w Workflow) MaxPollInterval() time.Duration {
	return time.Duration(w.MaxPollIntervalMillis) * time.Millisecond
}

func (w Workflow) ErrorRetryDuration() time.Duration {
	return time.Duration(w.ErrorRetryInterval) * time.Second
}

func (w Workflow) HeartbeatDuration() time.Duration {
	return time.Duration(w.HeartbeatInterval) * time.Second
}

func (w Workflow) LeaseDuration() time.Duration {
	return time.Duration(w.LeaseTimeout) * time.Second
}

func (w Workflow) DrainDuration() time.Duration {
	return time.Duration(w.DrainTimeout) * time.Second
}

func (w Workflow) RetryBackoffDuration() time.Duration {
	return time.Duration(w.RetryBackoff) * time.Second
}

func (w Workflow) MaxRetryBackoffDuration() time.Duration {
	return time.Duration(w.MaxRetryBackoff) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
