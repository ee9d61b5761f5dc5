package scanning_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parcel/internal/scanning"
	"parcel/internal/services"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanCleanFile(t *testing.T) {
	verdict, err := scanning.NewSignatureScanner().Scan(context.Background(), writeFile(t, "just some text"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !verdict.Clean {
		t.Fatalf("expected clean verdict, got %+v", verdict)
	}
}

func TestScanDetectsEICAR(t *testing.T) {
	verdict, err := scanning.NewSignatureScanner().Scan(context.Background(), writeFile(t, "prefix "+scanning.EICAR+" suffix"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if verdict.Clean || verdict.Threat != "EICAR-Test-File" {
		t.Fatalf("expected EICAR detection, got %+v", verdict)
	}
}

func TestScanDetectsPatternAcrossChunkBoundary(t *testing.T) {
	padding := strings.Repeat("a", 64*1024-10)
	verdict, err := scanning.NewSignatureScanner("NEEDLE-IN-HAYSTACK").Scan(context.Background(), writeFile(t, padding+"NEEDLE-IN-HAYSTACK"+padding))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if verdict.Clean || verdict.Threat != "custom-1" {
		t.Fatalf("expected custom signature detection, got %+v", verdict)
	}
}

func TestScanMissingFile(t *testing.T) {
	_, err := scanning.NewSignatureScanner().Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

type stubScanner struct {
	verdict services.Verdict
	err     error
}

func (s stubScanner) Scan(context.Context, string) (services.Verdict, error) { return s.verdict, s.err }

func TestCheck(t *testing.T) {
	ctx := context.Background()
	if err := scanning.Check(ctx, nil, "x"); err != nil {
		t.Fatalf("nil scanner should pass, got %v", err)
	}
	if err := scanning.Check(ctx, stubScanner{verdict: services.Verdict{Clean: true}}, "x"); err != nil {
		t.Fatalf("clean verdict should pass, got %v", err)
	}
	err := scanning.Check(ctx, stubScanner{verdict: services.Verdict{Threat: "Trojan.X"}}, "x")
	if !errors.Is(err, services.ErrScan) || !strings.Contains(err.Error(), "Trojan.X") {
		t.Fatalf("expected scan rejection, got %v", err)
	}
	err = scanning.Check(ctx, stubScanner{err: errors.New("daemon down")}, "x")
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected untagged scanner failure to be io, got %v", err)
	}
}
