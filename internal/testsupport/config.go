package testsupport

import (
	"path/filepath"
	"testing"

	"parcel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retries use no backoff so failing stages settle quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.UploadRoot = filepath.Join(base, "uploads")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Public.BaseURL = "http://files.test"
	cfgVal.Public.DownloadBaseURL = "http://files.test/bundles"
	cfgVal.Store.Backend = config.StoreBackendMemory
	cfgVal.Store.Path = filepath.Join(base, "uploads", "parcel.db")
	cfgVal.Pipeline.RetryBaseDelayMillis = 0
	cfgVal.Pipeline.RetryMaxDelayMillis = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxFileSize overrides the upload size ceiling.
func WithMaxFileSize(size int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Limits.MaxFileSize = size
	}
}

// WithAllowedTypes replaces the MIME allow-list.
func WithAllowedTypes(types ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Limits.AllowedMimeTypes = append([]string(nil), types...)
	}
}

// WithConcurrency sets the default batch concurrency.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Concurrency = n
	}
}

// WithSQLiteStore switches the job store to SQLite.
func WithSQLiteStore() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = config.StoreBackendSQLite
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TempDir)
}
