package fileutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeName reduces a client-supplied file name to a safe on-disk name.
// Accents are folded to their base letters and every other character outside
// [a-zA-Z0-9.-] becomes an underscore. Directory components are dropped.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err == nil {
		name = folded
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	switch name {
	case "", ".", "..":
		return "file"
	}
	return name
}

// SplitExt returns the name without its final extension and the extension
// itself (including the dot).
func SplitExt(name string) (string, string) {
	ext := ""
	if idx := strings.LastIndex(name, "."); idx > 0 {
		ext = name[idx:]
		name = name[:idx]
	}
	return name, ext
}
