package bundle

import (
	"strings"
	"testing"
	"time"
)

func TestUniqueName(t *testing.T) {
	used := map[string]struct{}{}
	got := []string{
		uniqueName("a.txt", used),
		uniqueName("a.txt", used),
		uniqueName("a.txt", used),
		uniqueName("a-2.txt", used),
		uniqueName("noext", used),
		uniqueName("noext", used),
	}
	want := []string{"a.txt", "a-2.txt", "a-3.txt", "a-2-2.txt", "noext", "noext-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("uniqueName #%d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRenderReadmeDefaults(t *testing.T) {
	created := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	readme := renderReadme(Manifest{ID: "abc", CreatedAt: created}, "")
	for _, want := range []string{"# Bundle Abc", defaultDescription, "March 4, 2026", defaultLicense} {
		if !strings.Contains(readme, want) {
			t.Fatalf("README missing %q:\n%s", want, readme)
		}
	}
}

func TestEncodeManifestRejectsUnsafeNames(t *testing.T) {
	m := Manifest{
		ID:        "id",
		Name:      "n",
		CreatedAt: time.Now().UTC(),
		Files:     []ManifestEntry{{Name: "../escape", OriginalName: "x", Size: 1, Type: "text/plain"}},
	}
	if _, err := encodeManifest(m); err == nil {
		t.Fatal("expected schema violation for unsafe entry name")
	}
	m.Files[0].Name = "safe.txt"
	if _, err := encodeManifest(m); err != nil {
		t.Fatalf("encodeManifest: %v", err)
	}
}
