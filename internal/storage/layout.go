package storage

import (
	"net/url"
	"path/filepath"
	"strings"

	"parcel/internal/config"
	"parcel/internal/fileutil"
)

// Layout resolves content paths and public URLs.
type Layout struct {
	root            string
	baseURL         string
	downloadBaseURL string
}

// NewLayout builds a Layout from configuration.
func NewLayout(cfg *config.Config) *Layout {
	return &Layout{
		root:            filepath.Clean(cfg.Paths.UploadRoot),
		baseURL:         strings.TrimRight(cfg.Public.BaseURL, "/"),
		downloadBaseURL: strings.TrimRight(cfg.Public.DownloadBaseURL, "/"),
	}
}

// Root is the upload root.
func (l *Layout) Root() string { return l.root }

// FilesDir holds finalized uploads.
func (l *Layout) FilesDir() string { return filepath.Join(l.root, "files") }

// ProcessedDir holds derived artifacts.
func (l *Layout) ProcessedDir() string { return filepath.Join(l.root, "processed") }

// BundlesDir holds assembled bundles.
func (l *Layout) BundlesDir() string { return filepath.Join(l.root, "bundles") }

// FinalPath is the deterministic content path for a job's upload.
func (l *Layout) FinalPath(jobID, originalName string) string {
	return filepath.Join(l.FilesDir(), jobID+"_"+fileutil.SanitizeName(originalName))
}

// BundlePath is where bundle bundleID is written.
func (l *Layout) BundlePath(bundleID string) string {
	return filepath.Join(l.BundlesDir(), bundleID+".zip")
}

// URL maps a path under the upload root to its public URL. Paths outside the
// root yield an empty string.
func (l *Layout) URL(path string) string {
	if path == "" {
		return ""
	}
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return l.baseURL + "/" + strings.Join(segments, "/")
}

// DownloadURL is the public download route for a bundle.
func (l *Layout) DownloadURL(bundleID string) string {
	return l.downloadBaseURL + "/" + url.PathEscape(bundleID)
}
