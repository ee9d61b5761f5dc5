package processing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"parcel/internal/fileutil"
)

// Output decides where artifacts land and how they are addressed.
type Output struct {
	Dir string
	// URL maps an on-disk path to its public URL. Nil leaves URLs empty.
	URL func(path string) string
}

// Path returns {Dir}/{jobID}_{base}_{suffix}{ext} where base is the
// sanitized original name without its extension.
func (o Output) Path(jobID, originalName, suffix, ext string) string {
	base, _ := fileutil.SplitExt(fileutil.SanitizeName(originalName))
	name := fmt.Sprintf("%s_%s_%s%s", jobID, base, fileutil.SanitizeName(suffix), ext)
	return filepath.Join(o.Dir, name)
}

// claimSuffix returns suffix, or suffix-2, suffix-3, ... when another
// artifact of the same request already owns the resulting file name.
func claimSuffix(suffix string, used map[string]struct{}) string {
	candidate := suffix
	for n := 2; ; n++ {
		key := strings.ToLower(fileutil.SanitizeName(candidate))
		if _, taken := used[key]; !taken {
			used[key] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", suffix, n)
	}
}

// Ext returns the extension an artifact should carry: the requested format
// when set, otherwise the original name's extension.
func Ext(originalName, format string) string {
	if format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), "."); format != "" {
		return "." + format
	}
	_, ext := fileutil.SplitExt(fileutil.SanitizeName(originalName))
	return ext
}

func (o Output) describe(kind ArtifactKind, path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	artifact := Artifact{Kind: kind, Path: path, Size: info.Size()}
	if o.URL != nil {
		artifact.URL = o.URL(path)
	}
	return artifact, nil
}
