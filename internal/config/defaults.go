package config

const (
	defaultUploadRoot           = "~/.local/share/parcel/uploads"
	defaultTempDir              = "~/.local/share/parcel/tmp"
	defaultLogDir               = "~/.local/share/parcel/logs"
	defaultPublicBaseURL        = "http://localhost:3000/api/files"
	defaultDownloadBaseURL      = "/api/bundles/download"
	defaultMaxFileSize          = 100 * 1024 * 1024
	defaultConcurrency          = 3
	defaultRetryAttempts        = 3
	defaultRetryBaseDelayMillis = 100
	defaultRetryMaxDelayMillis  = 2000
	defaultTempMaxAgeHours      = 24
	defaultStoreBackend         = "sqlite"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLicense              = "All rights reserved"
)

// StoreBackendSQLite persists jobs in a SQLite database under the upload root.
const StoreBackendSQLite = "sqlite"

// StoreBackendMemory keeps jobs in process memory only.
const StoreBackendMemory = "memory"

var defaultAllowedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"text/markdown",
	"application/zip",
	"application/json",
	"text/csv",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	allowed := make([]string, len(defaultAllowedMimeTypes))
	copy(allowed, defaultAllowedMimeTypes)
	return Config{
		Paths: Paths{
			UploadRoot: defaultUploadRoot,
			TempDir:    defaultTempDir,
			LogDir:     defaultLogDir,
		},
		Public: Public{
			BaseURL:         defaultPublicBaseURL,
			DownloadBaseURL: defaultDownloadBaseURL,
		},
		Limits: Limits{
			MaxFileSize:      defaultMaxFileSize,
			AllowedMimeTypes: allowed,
		},
		Pipeline: Pipeline{
			Concurrency:          defaultConcurrency,
			RetryAttempts:        defaultRetryAttempts,
			RetryBaseDelayMillis: defaultRetryBaseDelayMillis,
			RetryMaxDelayMillis:  defaultRetryMaxDelayMillis,
			TempMaxAgeHours:      defaultTempMaxAgeHours,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Bundle: Bundle{
			DefaultLicense: defaultLicense,
		},
	}
}
