package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parcel/internal/logging"
)

func makeOldDir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir := filepath.Join(tmpDir, "old-job")
	makeOldDir(t, oldDir)

	recentDir := filepath.Join(tmpDir, "recent-job")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, nil, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != oldDir {
		t.Errorf("expected %s to be removed, got %s", oldDir, result.Removed[0])
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleKeepsActiveJobs(t *testing.T) {
	tmpDir := t.TempDir()
	active := filepath.Join(tmpDir, "job-active")
	makeOldDir(t, active)

	result := CleanStale(context.Background(), tmpDir, time.Hour, map[string]struct{}{"job-active": {}}, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Fatalf("expected active job dir to be kept, removed %v", result.Removed)
	}
	if _, err := os.Stat(active); err != nil {
		t.Fatal("active job directory should still exist")
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	tmpDir := t.TempDir()

	oldFile := filepath.Join(tmpDir, "old-file.txt")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, nil, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}
	if _, err := os.Stat(oldFile); err != nil {
		t.Error("file should not have been removed")
	}
}

func TestCleanOrphanedEmptyDir(t *testing.T) {
	for _, dir := range []string{"", "   "} {
		result := CleanOrphaned(context.Background(), dir, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanOrphanedRemovesUnknownJobs(t *testing.T) {
	tmpDir := t.TempDir()

	knownDir := filepath.Join(tmpDir, "job-known")
	if err := os.Mkdir(knownDir, 0o755); err != nil {
		t.Fatalf("create known dir: %v", err)
	}
	unknownDir := filepath.Join(tmpDir, "job-unknown")
	if err := os.Mkdir(unknownDir, 0o755); err != nil {
		t.Fatalf("create unknown dir: %v", err)
	}

	result := CleanOrphaned(context.Background(), tmpDir, map[string]struct{}{"job-known": {}}, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != unknownDir {
		t.Fatalf("expected only %s removed, got %v", unknownDir, result.Removed)
	}
	if _, err := os.Stat(knownDir); err != nil {
		t.Error("known directory should still exist")
	}
}

func TestListDirectoriesInvalidPaths(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(path)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", path, err)
		}
		if dirs != nil {
			t.Errorf("expected nil for path %q, got %v", path, dirs)
		}
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	dir1 := filepath.Join(tmpDir, "job-1")
	if err := os.Mkdir(dir1, 0o755); err != nil {
		t.Fatalf("create dir1: %v", err)
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "job-2"), 0o755); err != nil {
		t.Fatalf("create dir2: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "not-a-dir.txt"), []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir1, "data.bin"), []byte("12345"), 0o644); err != nil {
		t.Fatalf("create inner file: %v", err)
	}

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 directories, got %d", len(dirs))
	}

	var foundDir1 bool
	for _, d := range dirs {
		if d.Name == "job-1" {
			foundDir1 = true
			if d.Size != 5 {
				t.Errorf("dir1 size = %d, want 5", d.Size)
			}
			if d.Path != dir1 || d.ModTime.IsZero() {
				t.Errorf("unexpected dir info %+v", d)
			}
		}
	}
	if !foundDir1 {
		t.Error("did not find job-1 in results")
	}
}
