package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePublic()
	c.normalizeLimits()
	c.normalizePipeline()
	c.normalizeStore()
	c.normalizeLogging()
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("PARCEL_UPLOAD_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.UploadRoot = value
	}
	if value, ok := os.LookupEnv("PARCEL_TEMP_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.TempDir = value
	}
	if value, ok := os.LookupEnv("PARCEL_PUBLIC_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Public.BaseURL = value
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.UploadRoot) == "" {
		c.Paths.UploadRoot = defaultUploadRoot
	}
	if c.Paths.UploadRoot, err = expandPath(c.Paths.UploadRoot); err != nil {
		return fmt.Errorf("paths.upload_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Store.Path) != "" {
		if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
			return fmt.Errorf("store.path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizePublic() {
	c.Public.BaseURL = strings.TrimRight(strings.TrimSpace(c.Public.BaseURL), "/")
	c.Public.DownloadBaseURL = strings.TrimRight(strings.TrimSpace(c.Public.DownloadBaseURL), "/")
	if c.Public.DownloadBaseURL == "" {
		c.Public.DownloadBaseURL = defaultDownloadBaseURL
	}
}

func (c *Config) normalizeLimits() {
	seen := make(map[string]struct{}, len(c.Limits.AllowedMimeTypes))
	cleaned := make([]string, 0, len(c.Limits.AllowedMimeTypes))
	for _, mimeType := range c.Limits.AllowedMimeTypes {
		mimeType = strings.ToLower(strings.TrimSpace(mimeType))
		if mimeType == "" {
			continue
		}
		if _, ok := seen[mimeType]; ok {
			continue
		}
		seen[mimeType] = struct{}{}
		cleaned = append(cleaned, mimeType)
	}
	c.Limits.AllowedMimeTypes = cleaned
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = defaultConcurrency
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = 1
	}
	if c.Pipeline.TempMaxAgeHours <= 0 {
		c.Pipeline.TempMaxAgeHours = defaultTempMaxAgeHours
	}
	if len(c.Pipeline.StageTimeouts) > 0 {
		normalized := make(map[string]int, len(c.Pipeline.StageTimeouts))
		for stage, seconds := range c.Pipeline.StageTimeouts {
			normalized[strings.ToLower(strings.TrimSpace(stage))] = seconds
		}
		c.Pipeline.StageTimeouts = normalized
	}
	if len(c.Pipeline.StageRetryAttempts) > 0 {
		normalized := make(map[string]int, len(c.Pipeline.StageRetryAttempts))
		for stage, attempts := range c.Pipeline.StageRetryAttempts {
			normalized[strings.ToLower(strings.TrimSpace(stage))] = attempts
		}
		c.Pipeline.StageRetryAttempts = normalized
	}
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
