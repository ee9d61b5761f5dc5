package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"parcel/internal/config"
	"parcel/internal/events"
	"parcel/internal/jobs"
	"parcel/internal/logging"
	"parcel/internal/pipeline"
	"parcel/internal/processing"
	"parcel/internal/scanning"
	"parcel/internal/services"
	"parcel/internal/staging"
	"parcel/internal/storage"
	"parcel/internal/testsupport"
	"parcel/internal/validation"
)

type harness struct {
	cfg      *config.Config
	proc     *pipeline.Processor
	registry *jobs.Registry
	bus      *events.Bus
}

func newHarness(t *testing.T, scanner services.Scanner, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	bus := events.NewBus(0)
	logger := logging.NewNop()
	registry := jobs.NewRegistry(testsupport.MustOpenStore(t, cfg), bus, logger, jobs.WithTempRoot(cfg.Paths.TempDir))
	layout := storage.NewLayout(cfg)
	router := processing.NewDefaultRouter(processing.Output{Dir: layout.ProcessedDir(), URL: layout.URL}, processing.Collaborators{}, logger)
	proc, err := pipeline.New(cfg, pipeline.Dependencies{
		Registry: registry,
		Stager:   staging.NewStager(cfg.Paths.TempDir),
		Router:   router,
		Layout:   layout,
		Scanner:  scanner,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &harness{cfg: cfg, proc: proc, registry: registry, bus: bus}
}

func imageOptions() pipeline.Options {
	return pipeline.Options{
		Processing: processing.Options{
			Image: &processing.ImageOptions{
				GenerateThumbnails: true,
				ThumbnailSizes: []processing.ThumbnailSize{
					{Width: 150, Height: 150, Suffix: "thumb"},
					{Width: 400, Height: 400, Suffix: "medium"},
				},
				Optimize: true,
			},
		},
	}
}

func assertMissing(t *testing.T, paths ...string) {
	t.Helper()
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should not exist (err=%v)", path, err)
		}
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Fatalf("%s should be empty, found %d entries", dir, len(entries))
	}
}

func TestUploadImageProducesThumbnailsAndOptimized(t *testing.T) {
	h := newHarness(t, nil)
	data := bytes.Repeat([]byte{0x89}, 2*1024*1024)

	var seen []events.Type
	h.bus.Subscribe(func(evt events.Event) { seen = append(seen, evt.Type) })

	res, err := h.proc.Upload(context.Background(), testsupport.BytesFile("photo.png", "image/png", data), imageOptions())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.Success || len(res.Processed) != 3 {
		t.Fatalf("unexpected result: success=%v processed=%d", res.Success, len(res.Processed))
	}
	if res.File.URL == "" || res.File.Metadata == nil || res.File.Metadata.ProcessedCount != 3 {
		t.Fatalf("unexpected stored file %+v", res.File)
	}

	job, err := h.registry.Get(context.Background(), res.UploadID)
	if err != nil || job == nil {
		t.Fatalf("Get: %v %v", job, err)
	}
	if job.Status != jobs.StatusCompleted || job.Progress != 100 || job.TempPath != "" {
		t.Fatalf("unexpected job state %+v", job)
	}
	if _, err := os.Stat(job.FinalPath); err != nil {
		t.Fatalf("final file missing: %v", err)
	}
	assertEmptyDir(t, h.cfg.Paths.TempDir)

	want := []events.Type{
		events.UploadStarted,
		events.UploadProgress, events.UploadProgress, events.UploadProgress, events.UploadProgress,
		events.UploadCompleted,
	}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithMaxFileSize(1024))

	res, err := h.proc.Upload(context.Background(), testsupport.BytesFile("big.txt", "text/plain", make([]byte, 2048)), pipeline.Options{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	job, _ := h.registry.Get(context.Background(), res.UploadID)
	if job == nil || job.Status != jobs.StatusFailed || job.ErrorKind != services.KindValidation {
		t.Fatalf("unexpected job %+v", job)
	}
	assertEmptyDir(t, h.cfg.Paths.TempDir)
}

func TestUploadRejectsTypeBeforeStaging(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithAllowedTypes("image/png"))

	var opened atomic.Bool
	file := testsupport.BytesFile("notes.txt", "text/plain", []byte("hello"))
	open := file.Open
	file.Open = func(ctx context.Context) (io.ReadCloser, error) {
		opened.Store(true)
		return open(ctx)
	}

	if _, err := h.proc.Upload(context.Background(), file, pipeline.Options{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if opened.Load() {
		t.Fatal("payload was read before validation passed")
	}
	assertEmptyDir(t, h.cfg.Paths.TempDir)
}

func TestUploadCustomPredicate(t *testing.T) {
	h := newHarness(t, nil)
	opts := pipeline.Options{
		Validator: func(_ context.Context, file services.FileInfo) (validation.Verdict, error) {
			return validation.Verdict{Valid: false, Reason: "no drafts"}, nil
		},
	}
	_, err := h.proc.Upload(context.Background(), testsupport.BytesFile("draft.txt", "text/plain", []byte("x")), opts)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestUploadHashIsContentAddressed(t *testing.T) {
	h := newHarness(t, nil)
	data := []byte("identical bytes")

	first, err := h.proc.Upload(context.Background(), testsupport.BytesFile("a.txt", "text/plain", data), pipeline.Options{})
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second := testsupport.BytesFile("b.txt", "text/plain", data)
	second.Info.LastModified = time.Date(2020, 5, 5, 0, 0, 0, 0, time.UTC)
	res, err := h.proc.Upload(context.Background(), second, pipeline.Options{})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if first.File.Hash == "" || first.File.Hash != res.File.Hash {
		t.Fatalf("hashes differ: %q vs %q", first.File.Hash, res.File.Hash)
	}
	if first.UploadID == res.UploadID {
		t.Fatal("identical content must still produce distinct jobs")
	}
}

func TestUploadScanRejectionCleansUp(t *testing.T) {
	h := newHarness(t, scanning.NewSignatureScanner())

	res, err := h.proc.Upload(context.Background(), testsupport.BytesFile("eicar.txt", "text/plain", []byte(scanning.EICAR)), pipeline.Options{})
	if !errors.Is(err, services.ErrScan) {
		t.Fatalf("err = %v, want scan error", err)
	}
	job, _ := h.registry.Get(context.Background(), res.UploadID)
	if job == nil || job.Status != jobs.StatusFailed || job.ErrorKind != services.KindScan {
		t.Fatalf("unexpected job %+v", job)
	}
	assertEmptyDir(t, h.cfg.Paths.TempDir)
	assertEmptyDir(t, h.cfg.FilesDir())
}

func TestUploadRetriesTransientOpenFailure(t *testing.T) {
	h := newHarness(t, nil)
	file := testsupport.BytesFile("retry.txt", "text/plain", []byte("payload"))
	open := file.Open
	var calls atomic.Int32
	file.Open = func(ctx context.Context) (io.ReadCloser, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection reset")
		}
		return open(ctx)
	}

	if _, err := h.proc.Upload(context.Background(), file, pipeline.Options{}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("open calls = %d, want 2", calls.Load())
	}
}

func TestUploadCancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.proc.Upload(ctx, testsupport.BytesFile("a.txt", "text/plain", []byte("x")), pipeline.Options{})
	if services.KindOf(err) != services.KindCancelled {
		t.Fatalf("err = %v, want cancelled", err)
	}
	job, _ := h.registry.Get(context.Background(), res.UploadID)
	if job == nil || job.Status != jobs.StatusFailed || job.ErrorKind != services.KindCancelled {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestUploadStageTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.cfg.Pipeline.StageTimeouts = map[string]int{pipeline.StageStage: 1}

	file := testsupport.BytesFile("slow.txt", "text/plain", []byte("x"))
	file.Open = func(ctx context.Context) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := h.proc.Upload(context.Background(), file, pipeline.Options{})
	if services.KindOf(err) != services.KindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestBatchIsolatesFailures(t *testing.T) {
	h := newHarness(t, nil, testsupport.WithMaxFileSize(1024))

	files := make([]pipeline.File, 0, 10)
	for i := 0; i < 10; i++ {
		size := 100
		if i == 4 {
			size = 4096
		}
		files = append(files, testsupport.BytesFile(fmt.Sprintf("file-%d.txt", i), "text/plain", make([]byte, size)))
	}

	res, err := h.proc.UploadBatch(context.Background(), files, pipeline.Options{Concurrency: 3})
	if err != nil {
		t.Fatalf("UploadBatch: %v", err)
	}
	if res.Successful != 9 || res.Failed != 1 {
		t.Fatalf("successful=%d failed=%d", res.Successful, res.Failed)
	}
	if len(res.Results)+len(res.Errors) != res.TotalFiles || res.TotalFiles != 10 {
		t.Fatalf("result accounting broken: %+v", res)
	}
	if res.Waves != 4 {
		t.Fatalf("waves = %d, want 4", res.Waves)
	}
	if res.Errors[0].File != "file-4.txt" || res.Errors[0].Kind != services.KindValidation {
		t.Fatalf("unexpected batch error %+v", res.Errors[0])
	}

	page, err := h.registry.List(context.Background(), "", 1, 100)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, job := range page.Jobs {
		if job.BatchID != res.BatchID {
			t.Fatalf("job %s batch = %q, want %q", job.ID, job.BatchID, res.BatchID)
		}
	}
}

func TestBatchWavesBoundConcurrency(t *testing.T) {
	h := newHarness(t, nil)

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	files := make([]pipeline.File, 0, 7)
	for i := 0; i < 7; i++ {
		file := testsupport.BytesFile(fmt.Sprintf("f%d.txt", i), "text/plain", []byte("data"))
		open := file.Open
		file.Open = func(ctx context.Context) (io.ReadCloser, error) {
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return open(ctx)
		}
		files = append(files, file)
	}

	res, err := h.proc.UploadBatch(context.Background(), files, pipeline.Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("UploadBatch: %v", err)
	}
	if res.Waves != pipeline.Waves(7, 2) || res.Waves != 4 {
		t.Fatalf("waves = %d", res.Waves)
	}
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
	for i, r := range res.Results {
		if want := fmt.Sprintf("f%d.txt", i); r.File.Metadata.OriginalName != want {
			t.Fatalf("result %d = %s, want %s", i, r.File.Metadata.OriginalName, want)
		}
	}
}

func TestBatchCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []pipeline.File{
		testsupport.BytesFile("a.txt", "text/plain", []byte("a")),
		testsupport.BytesFile("b.txt", "text/plain", []byte("b")),
	}
	res, err := h.proc.UploadBatch(ctx, files, pipeline.Options{})
	if err != nil {
		t.Fatalf("UploadBatch: %v", err)
	}
	if res.Waves != 0 || res.Failed != 2 || res.Successful != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, e := range res.Errors {
		if e.Kind != services.KindCancelled {
			t.Fatalf("error kind = %s, want cancelled", e.Kind)
		}
	}
}

func TestWaves(t *testing.T) {
	cases := []struct {
		n, c, want int
	}{
		{0, 3, 0},
		{1, 3, 1},
		{3, 3, 1},
		{4, 3, 2},
		{10, 3, 4},
		{5, 0, 5},
	}
	for _, tc := range cases {
		if got := pipeline.Waves(tc.n, tc.c); got != tc.want {
			t.Errorf("Waves(%d, %d) = %d, want %d", tc.n, tc.c, got, tc.want)
		}
	}
}

func TestDeleteRemovesEveryFile(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.proc.Upload(context.Background(), testsupport.BytesFile("pic.png", "image/png", []byte("png-bytes")), imageOptions())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	removed, err := h.registry.Delete(context.Background(), res.UploadID)
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	if job, _ := h.registry.Get(context.Background(), res.UploadID); job != nil {
		t.Fatal("job still present after delete")
	}
	assertMissing(t, res.File.Path)
	for _, artifact := range res.Processed {
		assertMissing(t, artifact.Path)
	}
	assertEmptyDir(t, h.cfg.ProcessedDir())
	assertEmptyDir(t, h.cfg.FilesDir())
}

func TestBatchResultJSONUsesCamelCaseKeys(t *testing.T) {
	res := pipeline.BatchResult{
		BatchID:    "b1",
		TotalFiles: 2,
		Successful: 1,
		Failed:     1,
		Results: []pipeline.UploadResult{{
			Success:  true,
			UploadID: "u1",
			File: pipeline.StoredFile{
				Path:     "/uploads/u1_a.txt",
				Metadata: &storage.Metadata{OriginalName: "a.txt", ProcessedCount: 1},
			},
		}},
		Errors: []pipeline.BatchError{{File: "b.txt", UploadID: "u2", Error: "boom"}},
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, want := range []string{`"batchId":"b1"`, `"totalFiles":2`, `"uploadId":"u1"`, `"uploadId":"u2"`, `"originalName":"a.txt"`, `"processedCount":1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in %s", want, body)
		}
	}
	if strings.Contains(body, `_id"`) || strings.Contains(body, `total_files`) {
		t.Fatalf("snake_case key in %s", body)
	}
}
