package staging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"parcel/internal/services"
)

func bytesOpener(data []byte) Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func TestStageWritesNamespacedPath(t *testing.T) {
	root := t.TempDir()
	stager := NewStager(root)
	data := []byte("hello parcel")

	path, err := stager.Stage(context.Background(), "job-1", services.FileInfo{Name: "my file.txt", Size: int64(len(data))}, bytesOpener(data))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	want := filepath.Join(root, "job-1", "my_file.txt")
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("unexpected staged content %q (%v)", got, err)
	}
}

func TestStageSameNameDifferentJobs(t *testing.T) {
	stager := NewStager(t.TempDir())
	info := services.FileInfo{Name: "same.txt", Size: 1}
	a, err := stager.Stage(context.Background(), "job-a", info, bytesOpener([]byte("a")))
	if err != nil {
		t.Fatal(err)
	}
	b, err := stager.Stage(context.Background(), "job-b", info, bytesOpener([]byte("b")))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("expected distinct paths, both %q", a)
	}
}

func TestStageSizeMismatchRemovesOutput(t *testing.T) {
	for _, declared := range []int64{3, 20} {
		stager := NewStager(t.TempDir())
		info := services.FileInfo{Name: "x.bin", Size: declared}
		_, err := stager.Stage(context.Background(), "job", info, bytesOpener([]byte("0123456789")))
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("declared %d: expected validation error, got %v", declared, err)
		}
		if _, statErr := os.Stat(stager.Path("job", "x.bin")); !os.IsNotExist(statErr) {
			t.Fatalf("declared %d: expected partial output removed", declared)
		}
	}
}

func TestStageOpenFailureIsIOError(t *testing.T) {
	stager := NewStager(t.TempDir())
	_, err := stager.Stage(context.Background(), "job", services.FileInfo{Name: "x", Size: 1}, func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("gone")
	})
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestStageCancelled(t *testing.T) {
	stager := NewStager(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := stager.Stage(ctx, "job", services.FileInfo{Name: "x", Size: 1}, bytesOpener([]byte("x")))
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

func TestRemoveDeletesJobDir(t *testing.T) {
	stager := NewStager(t.TempDir())
	if _, err := stager.Stage(context.Background(), "job", services.FileInfo{Name: "x", Size: 1}, bytesOpener([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if err := stager.Remove("job"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(stager.JobDir("job")); !os.IsNotExist(err) {
		t.Fatal("expected job dir removed")
	}
}

func TestStageStreamContextErrorIsIOError(t *testing.T) {
	stager := NewStager(t.TempDir())
	open := func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(iotestErrReader{err: context.Canceled}), nil
	}
	path, err := stager.Stage(context.Background(), "job", services.FileInfo{Name: "x.bin", Size: 4}, open)
	if err == nil {
		t.Fatalf("expected error, got path %q", path)
	}
	if !errors.Is(err, services.ErrIO) || errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected io error, got %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path on failure, got %q", path)
	}
	if _, statErr := os.Stat(stager.Path("job", "x.bin")); !os.IsNotExist(statErr) {
		t.Fatal("expected partial output removed")
	}
}

type iotestErrReader struct{ err error }

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }
