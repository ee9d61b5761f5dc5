package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePublic(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.UploadRoot) == "" {
		return errors.New("paths.upload_root must be set")
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		return errors.New("paths.temp_dir must be set")
	}
	if c.Paths.TempDir == c.Paths.UploadRoot {
		return errors.New("paths.temp_dir must differ from paths.upload_root")
	}
	return nil
}

func (c *Config) validatePublic() error {
	if c.Public.BaseURL == "" {
		return nil
	}
	if _, err := url.Parse(c.Public.BaseURL); err != nil {
		return fmt.Errorf("public.base_url: %w", err)
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.MaxFileSize <= 0 {
		return errors.New("limits.max_file_size must be positive")
	}
	if len(c.Limits.AllowedMimeTypes) == 0 {
		return errors.New("limits.allowed_mime_types must list at least one type")
	}
	for _, mimeType := range c.Limits.AllowedMimeTypes {
		if !strings.Contains(mimeType, "/") {
			return fmt.Errorf("limits.allowed_mime_types: %q is not a MIME type", mimeType)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.StageTimeoutSeconds < 0 {
		return errors.New("pipeline.stage_timeout_seconds must be >= 0")
	}
	for stage, seconds := range c.Pipeline.StageTimeouts {
		if seconds < 0 {
			return fmt.Errorf("pipeline.stage_timeouts.%s must be >= 0", stage)
		}
	}
	if c.Pipeline.RetryBaseDelayMillis < 0 || c.Pipeline.RetryMaxDelayMillis < 0 {
		return errors.New("pipeline retry delays must be >= 0")
	}
	if c.Pipeline.RetryMaxDelayMillis > 0 && c.Pipeline.RetryMaxDelayMillis < c.Pipeline.RetryBaseDelayMillis {
		return errors.New("pipeline.retry_max_delay_ms must be >= pipeline.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendSQLite, StoreBackendMemory:
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (expected sqlite or memory)", c.Store.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
