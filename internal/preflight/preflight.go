package preflight

import (
	"context"

	"parcel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the floor for free space checks when uploads are small.
const minFreeBytes = 64 * 1024 * 1024

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Upload root", cfg.Paths.UploadRoot),
		CheckDirectoryAccess("Files directory", cfg.FilesDir()),
		CheckDirectoryAccess("Processed directory", cfg.ProcessedDir()),
		CheckDirectoryAccess("Bundles directory", cfg.BundlesDir()),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
	}

	// Staging and finalizing each hold a full copy of the largest upload.
	need := max(2*cfg.Limits.MaxFileSize, minFreeBytes)
	results = append(results,
		CheckFreeSpace("Upload root free space", cfg.Paths.UploadRoot, uint64(need)),
		CheckFreeSpace("Temp free space", cfg.Paths.TempDir, uint64(need)),
	)

	if cfg.Store.Backend == config.StoreBackendSQLite {
		results = append(results, CheckStoreLock(ctx, cfg.StorePath()))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
