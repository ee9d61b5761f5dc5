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

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	UploadRoot string `toml:"upload_root"`
	TempDir    string `toml:"temp_dir"`
	LogDir     string `toml:"log_dir"`
}

// Public controls how on-disk paths are exposed as URLs.
type Public struct {
	BaseURL         string `toml:"base_url"`
	DownloadBaseURL string `toml:"download_base_url"`
}

// Limits contains intake validation settings.
type Limits struct {
	MaxFileSize      int64    `toml:"max_file_size"`
	AllowedMimeTypes []string `toml:"allowed_mime_types"`
}

// Pipeline contains per-upload execution settings.
type Pipeline struct {
	Concurrency           int            `toml:"concurrency"`
	ScanEnabled           bool           `toml:"scan_enabled"`
	ScanSignatures        []string       `toml:"scan_signatures"`
	FailOnProcessingError bool           `toml:"fail_on_processing_error"`
	StageTimeoutSeconds   int            `toml:"stage_timeout_seconds"`
	StageTimeouts         map[string]int `toml:"stage_timeouts"`
	RetryAttempts         int            `toml:"retry_attempts"`
	RetryBaseDelayMillis  int            `toml:"retry_base_delay_ms"`
	RetryMaxDelayMillis   int            `toml:"retry_max_delay_ms"`
	StageRetryAttempts    map[string]int `toml:"stage_retry_attempts"`
	TempMaxAgeHours       int            `toml:"temp_max_age_hours"`
}

// Store selects the job registry backend.
type Store struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Bundle contains defaults for bundle assembly.
type Bundle struct {
	DefaultLicense     string `toml:"default_license"`
	DefaultLicenseText string `toml:"default_license_text"`
}

// Config encapsulates all configuration values for parcel.
//
// Configuration sections by subsystem:
//   - Paths: upload root, temp root, and log directory
//   - Public: public base URL for file links and bundle downloads
//   - Limits: maximum upload size and MIME allow-list
//   - Pipeline: batch concurrency, scanning, timeouts, and retries
//   - Store: job registry backend (sqlite or memory)
//   - Logging: log format and level
//   - Bundle: default license wording
type Config struct {
	Paths    Paths    `toml:"paths"`
	Public   Public   `toml:"public"`
	Limits   Limits   `toml:"limits"`
	Pipeline Pipeline `toml:"pipeline"`
	Store    Store    `toml:"store"`
	Logging  Logging  `toml:"logging"`
	Bundle   Bundle   `toml:"bundle"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parcel/config.toml")
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

// LoadEnvFiles overlays variables from .env files in the working directory.
// Missing files are ignored; variables already set in the environment win.
func LoadEnvFiles(names ...string) {
	if len(names) == 0 {
		names = []string{".env", ".env.local"}
	}
	for _, name := range names {
		_ = godotenv.Load(name)
	}
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parcel.toml")
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

// FilesDir is where finalized uploads live.
func (c *Config) FilesDir() string { return filepath.Join(c.Paths.UploadRoot, "files") }

// ProcessedDir is where derived artifacts live.
func (c *Config) ProcessedDir() string { return filepath.Join(c.Paths.UploadRoot, "processed") }

// BundlesDir is where assembled bundle archives live.
func (c *Config) BundlesDir() string { return filepath.Join(c.Paths.UploadRoot, "bundles") }

// StorePath returns the SQLite database path for the job registry.
func (c *Config) StorePath() string {
	if strings.TrimSpace(c.Store.Path) != "" {
		return c.Store.Path
	}
	return filepath.Join(c.Paths.UploadRoot, "jobs.db")
}

// EnsureDirectories creates the upload layout and working directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.UploadRoot,
		c.FilesDir(),
		c.ProcessedDir(),
		c.BundlesDir(),
		c.Paths.TempDir,
		c.Paths.LogDir,
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

// StageTimeout returns the deadline applied to a single pipeline stage.
// Zero means the stage runs under the caller's context only.
func (c *Config) StageTimeout(stage string) time.Duration {
	if seconds, ok := c.Pipeline.StageTimeouts[stage]; ok {
		return time.Duration(seconds) * time.Second
	}
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}

// StageRetryAttempts returns the attempt budget for a pipeline stage.
func (c *Config) StageRetryAttempts(stage string) int {
	if attempts, ok := c.Pipeline.StageRetryAttempts[stage]; ok && attempts > 0 {
		return attempts
	}
	return c.Pipeline.RetryAttempts
}

// RetryDelays returns the base and maximum backoff between attempts.
func (c *Config) RetryDelays() (time.Duration, time.Duration) {
	return time.Duration(c.Pipeline.RetryBaseDelayMillis) * time.Millisecond,
		time.Duration(c.Pipeline.RetryMaxDelayMillis) * time.Millisecond
}

// TempMaxAge is how old a per-job temp directory must be before cleanup.
func (c *Config) TempMaxAge() time.Duration {
	return time.Duration(c.Pipeline.TempMaxAgeHours) * time.Hour
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
