package bundle_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"parcel/internal/bundle"
	"parcel/internal/config"
	"parcel/internal/events"
	"parcel/internal/jobs"
	"parcel/internal/logging"
	"parcel/internal/pipeline"
	"parcel/internal/processing"
	"parcel/internal/services"
	"parcel/internal/staging"
	"parcel/internal/storage"
	"parcel/internal/testsupport"
)

type fixture struct {
	cfg       *config.Config
	proc      *pipeline.Processor
	registry  *jobs.Registry
	bus       *events.Bus
	assembler *bundle.Assembler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	bus := events.NewBus(0)
	logger := logging.NewNop()
	registry := jobs.NewRegistry(testsupport.MustOpenStore(t, cfg), bus, logger)
	layout := storage.NewLayout(cfg)
	proc, err := pipeline.New(cfg, pipeline.Dependencies{
		Registry: registry,
		Stager:   staging.NewStager(cfg.Paths.TempDir),
		Router:   processing.NewDefaultRouter(processing.Output{Dir: layout.ProcessedDir(), URL: layout.URL}, processing.Collaborators{}, logger),
		Layout:   layout,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &fixture{
		cfg:       cfg,
		proc:      proc,
		registry:  registry,
		bus:       bus,
		assembler: bundle.NewAssembler(registry, layout, cfg.Bundle, bus, logger),
	}
}

func (f *fixture) upload(t *testing.T, name, body string) string {
	t.Helper()
	res, err := f.proc.Upload(context.Background(), testsupport.BytesFile(name, "text/plain", []byte(body)), pipeline.Options{})
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return res.UploadID
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer r.Close()
	out := make(map[string]string, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func TestCreateBundleFromCompletedJobs(t *testing.T) {
	f := newFixture(t)
	ids := []string{
		f.upload(t, "one.txt", "first"),
		f.upload(t, "two words.txt", "second"),
		f.upload(t, "three.txt", "third"),
	}
	refs := make([]bundle.Ref, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, bundle.Ref{JobID: id})
	}

	var created bool
	f.bus.Subscribe(func(events.Event) { created = true }, events.ForTypes(events.BundleCreated))

	res, err := f.assembler.Create(context.Background(), refs, bundle.Options{Name: "starter pack"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created {
		t.Fatal("expected bundle:created event")
	}

	entries := readArchive(t, res.Path)
	if len(entries) != 4 {
		t.Fatalf("archive has %d entries, want 4", len(entries))
	}
	for _, name := range []string{"one.txt", "two_words.txt", "three.txt", "bundle-metadata.json"} {
		if _, ok := entries[name]; !ok {
			t.Fatalf("archive missing %s", name)
		}
	}
	if entries["two_words.txt"] != "second" {
		t.Fatalf("entry content = %q", entries["two_words.txt"])
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	sum := sha256.Sum256(data)
	if res.Hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash mismatch: %s", res.Hash)
	}
	if res.Size != int64(len(data)) {
		t.Fatalf("size = %d, want %d", res.Size, len(data))
	}
	if !strings.HasSuffix(res.DownloadURL, "/"+res.BundleID) || res.URL == "" {
		t.Fatalf("unexpected urls %q %q", res.URL, res.DownloadURL)
	}

	var manifest bundle.Manifest
	if err := json.Unmarshal([]byte(entries["bundle-metadata.json"]), &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.ID != res.BundleID || len(manifest.Files) != 3 {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	for i, want := range []string{"one.txt", "two words.txt", "three.txt"} {
		if manifest.Files[i].OriginalName != want {
			t.Fatalf("manifest[%d] = %s, want %s", i, manifest.Files[i].OriginalName, want)
		}
		if manifest.Files[i].Hash == "" {
			t.Fatalf("manifest[%d] missing hash", i)
		}
	}
}

func TestCreateSkipsJobsWithoutFinalFile(t *testing.T) {
	f := newFixture(t)
	good := f.upload(t, "keep.txt", "keep")

	failed, err := f.proc.Upload(context.Background(), testsupport.BytesFile("bad.exe", "application/x-msdownload", []byte("x")), pipeline.Options{})
	if err == nil {
		t.Fatal("expected validation failure")
	}

	res, err := f.assembler.Create(context.Background(), []bundle.Ref{
		{JobID: "does-not-exist"},
		{JobID: failed.UploadID},
		{JobID: good},
	}, bundle.Options{Name: "partial"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(res.Metadata.Files) != 1 || res.Metadata.Files[0].OriginalName != "keep.txt" {
		t.Fatalf("unexpected manifest files %+v", res.Metadata.Files)
	}
}

func TestCreateRenamesDuplicateEntries(t *testing.T) {
	f := newFixture(t)
	a := f.upload(t, "photo.txt", "a")
	b := f.upload(t, "photo.txt", "b")
	c := f.upload(t, "README.md", "readme source")

	res, err := f.assembler.Create(context.Background(), []bundle.Ref{{JobID: a}, {JobID: b}, {JobID: c}}, bundle.Options{Name: "dups", IncludeReadme: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	entries := readArchive(t, res.Path)
	if entries["photo.txt"] != "a" || entries["photo-2.txt"] != "b" {
		t.Fatalf("unexpected duplicate handling: %v", keys(entries))
	}
	if entries["README-2.md"] != "readme source" {
		t.Fatalf("source README should be renamed, entries %v", keys(entries))
	}
	if !strings.HasPrefix(entries["README.md"], "# Dups") {
		t.Fatalf("generated README = %q", entries["README.md"])
	}
}

func TestCreateReadmeAndLicense(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, "guide.txt", "content")

	res, err := f.assembler.Create(context.Background(), []bundle.Ref{{JobID: id, Metadata: map[string]any{"sku": "G-1"}}}, bundle.Options{
		Name:           "guide",
		Description:    "How-to guide",
		IncludeReadme:  true,
		IncludeLicense: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	entries := readArchive(t, res.Path)
	readme := entries["README.md"]
	for _, want := range []string{"How-to guide", "- guide.txt (text/plain)", "## License\n\nAll rights reserved"} {
		if !strings.Contains(readme, want) {
			t.Fatalf("README missing %q:\n%s", want, readme)
		}
	}
	if !strings.HasPrefix(entries["LICENSE.txt"], "Digital Product License") {
		t.Fatalf("LICENSE = %q", entries["LICENSE.txt"])
	}
	meta := res.Metadata.Files[0].Metadata
	if meta["sku"] != "G-1" || meta["originalName"] != "guide.txt" {
		t.Fatalf("merged metadata = %v", meta)
	}

	res, err = f.assembler.Create(context.Background(), []bundle.Ref{{JobID: id}}, bundle.Options{
		Name:           "custom",
		IncludeLicense: true,
		License:        "CC-BY-4.0",
		LicenseText:    "custom terms\n",
	})
	if err != nil {
		t.Fatalf("Create custom: %v", err)
	}
	if got := readArchive(t, res.Path)["LICENSE.txt"]; got != "custom terms\n" {
		t.Fatalf("custom LICENSE = %q", got)
	}
}

type failingSource struct{}

func (failingSource) Get(context.Context, string) (*jobs.Job, error) {
	return nil, errors.New("store offline")
}

func TestCreateFailureEmitsEventAndLeavesNoArchive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	bus := events.NewBus(0)
	assembler := bundle.NewAssembler(failingSource{}, storage.NewLayout(cfg), cfg.Bundle, bus, logging.NewNop())

	var failed []events.Event
	bus.Subscribe(func(evt events.Event) { failed = append(failed, evt) }, events.ForTypes(events.BundleFailed))

	_, err := assembler.Create(context.Background(), []bundle.Ref{{JobID: "x"}}, bundle.Options{Name: "broken"})
	if !errors.Is(err, services.ErrBundle) {
		t.Fatalf("err = %v, want bundle error", err)
	}
	if len(failed) != 1 || failed[0].Error == "" {
		t.Fatalf("bundle:failed events = %+v", failed)
	}
	entries, err := os.ReadDir(cfg.BundlesDir())
	if err != nil {
		t.Fatalf("read bundles dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("bundles dir should be empty, has %d entries", len(entries))
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
