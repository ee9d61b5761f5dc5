package testsupport

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parcel/internal/pipeline"
	"parcel/internal/services"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// BytesFile wraps data as an upload with the given name and MIME type.
func BytesFile(name, mimeType string, data []byte) pipeline.File {
	return pipeline.File{
		Info: services.FileInfo{
			Name:         name,
			Size:         int64(len(data)),
			Type:         mimeType,
			LastModified: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// DiskFile wraps an existing file on disk as an upload.
func DiskFile(t testing.TB, path, mimeType string) pipeline.File {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return pipeline.File{
		Info: services.FileInfo{
			Name:         filepath.Base(path),
			Size:         info.Size(),
			Type:         mimeType,
			LastModified: info.ModTime().UTC(),
		},
		Open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}
