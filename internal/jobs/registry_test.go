package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"parcel/internal/events"
	"parcel/internal/logging"
	"parcel/internal/processing"
	"parcel/internal/services"
	"parcel/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *events.Bus, string) {
	t.Helper()
	bus := events.NewBus(0)
	tempRoot := t.TempDir()
	return NewRegistry(NewMemoryStore(), bus, logging.NewNop(), WithTempRoot(tempRoot)), bus, tempRoot
}

func testFile(name string) services.FileInfo {
	return services.FileInfo{Name: name, Size: 10, Type: "text/plain"}
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, bus, _ := newTestRegistry(t)

	var seen []events.Type
	unsubscribe := bus.Subscribe(func(evt events.Event) { seen = append(seen, evt.Type) })
	defer unsubscribe()

	job, err := reg.Create(ctx, testFile("a.txt"), "owner", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != StatusUploading || job.ID == "" || job.StartedAt.IsZero() {
		t.Fatalf("unexpected created job %+v", job)
	}
	if _, err := reg.Progress(ctx, job.ID, ProgressStaged, func(j *Job) { j.TempPath = "/tmp/x" }); err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if _, err := reg.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	done, err := reg.Complete(ctx, job.ID, "/uploads/files/final", &storage.Metadata{OriginalName: "a.txt"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.Progress != ProgressDone || done.TempPath != "" || done.CompletedAt.IsZero() {
		t.Fatalf("unexpected completed job %+v", done)
	}

	want := []events.Type{events.UploadStarted, events.UploadProgress, events.UploadCompleted}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("events = %v, want %v", seen, want)
		}
	}

	if _, err := reg.Fail(ctx, job.ID, errors.New("late")); !errors.Is(err, ErrTerminal) {
		t.Fatalf("Fail after completion err = %v, want ErrTerminal", err)
	}
}

func TestRegistryRejectsInvalidMutations(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	job, err := reg.Create(ctx, testFile("b.txt"), "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := reg.Complete(ctx, job.ID, "/x", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete from uploading err = %v", err)
	}
	if _, err := reg.Progress(ctx, job.ID, ProgressHashed, nil); err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if _, err := reg.Progress(ctx, job.ID, ProgressStaged, nil); !errors.Is(err, ErrProgressRegression) {
		t.Fatalf("progress regression err = %v", err)
	}
	if _, err := reg.Update(ctx, job.ID, func(j *Job) error { j.FileHash = "aa"; return nil }); err != nil {
		t.Fatalf("set hash: %v", err)
	}
	if _, err := reg.Update(ctx, job.ID, func(j *Job) error { j.FileHash = "bb"; return nil }); !errors.Is(err, ErrHashConflict) {
		t.Fatalf("hash overwrite err = %v", err)
	}
	if _, err := reg.Update(ctx, job.ID, func(j *Job) error { j.File.Name = "other"; return nil }); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("file mutation err = %v", err)
	}
	if _, err := reg.Update(ctx, "missing", func(*Job) error { return nil }); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing job err = %v", err)
	}
}

func TestRegistryFailRecordsKind(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	job, _ := reg.Create(ctx, testFile("c.txt"), "", "batch-1")

	cause := services.Wrap(services.ErrScan, "scan", "check", "content rejected", nil)
	failed, err := reg.Fail(ctx, job.ID, cause)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != StatusFailed || failed.ErrorKind != services.KindOf(cause) || failed.Error == "" {
		t.Fatalf("unexpected failed job %+v", failed)
	}
	if failed.BatchID != "batch-1" {
		t.Fatalf("batch id = %q", failed.BatchID)
	}
}

func TestRegistryListPagination(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)
	for i := 0; i < 5; i++ {
		if _, err := reg.Create(ctx, testFile("f.txt"), "u1", ""); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	_, _ = reg.Create(ctx, testFile("g.txt"), "u2", "")

	page, err := reg.List(ctx, "u1", 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Jobs) != 2 || page.Pagination.Total != 5 || page.Pagination.Pages != 3 {
		t.Fatalf("unexpected page %+v", page.Pagination)
	}

	page, err = reg.List(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatalf("List defaults: %v", err)
	}
	if page.Pagination.Page != DefaultPage || page.Pagination.Limit != DefaultLimit || len(page.Jobs) != 5 {
		t.Fatalf("unexpected default page %+v", page.Pagination)
	}

	page, _ = reg.List(ctx, "nobody", 1, 10)
	if page.Jobs == nil || len(page.Jobs) != 0 || page.Pagination.Pages != 0 {
		t.Fatalf("empty listing = %+v", page)
	}
}

func TestRegistryDeleteRemovesFiles(t *testing.T) {
	ctx := context.Background()
	reg, bus, tempRoot := newTestRegistry(t)
	dir := t.TempDir()

	job, _ := reg.Create(ctx, testFile("d.png"), "", "")
	jobTemp := filepath.Join(tempRoot, job.ID)
	if err := os.MkdirAll(jobTemp, 0o755); err != nil {
		t.Fatal(err)
	}
	final := filepath.Join(dir, "final.png")
	thumb := filepath.Join(dir, "thumb.png")
	for _, path := range []string{final, thumb, filepath.Join(jobTemp, "d.png")} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := reg.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Update(ctx, job.ID, func(j *Job) error {
		j.ProcessedFiles = []processing.Artifact{{Kind: processing.KindThumbnail, Path: thumb}}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Complete(ctx, job.ID, final, nil); err != nil {
		t.Fatal(err)
	}

	var deleted bool
	bus.Subscribe(func(events.Event) { deleted = true }, events.ForTypes(events.UploadDeleted))

	removed, err := reg.Delete(ctx, job.ID)
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	for _, path := range []string{final, thumb, jobTemp} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s still exists (err=%v)", path, err)
		}
	}
	if got, _ := reg.Get(ctx, job.ID); got != nil {
		t.Fatal("job still present after delete")
	}
	if !deleted {
		t.Fatal("expected upload:deleted event")
	}

	removed, err = reg.Delete(ctx, job.ID)
	if err != nil || removed {
		t.Fatalf("second Delete = %v, %v", removed, err)
	}
}
