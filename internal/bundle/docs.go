package bundle

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"parcel/internal/fileutil"
)

const (
	readmeName   = "README.md"
	licenseName  = "LICENSE.txt"
	manifestName = "bundle-metadata.json"

	defaultDescription = "Digital product bundle"
	defaultLicense     = "All rights reserved"
	dateLayout         = "January 2, 2006"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

func renderReadme(m Manifest, license string) string {
	var b strings.Builder
	name := strings.TrimSpace(m.Name)
	if name == "" {
		name = "Bundle " + m.ID
	}
	description := strings.TrimSpace(m.Description)
	if description == "" {
		description = defaultDescription
	}
	if strings.TrimSpace(license) == "" {
		license = defaultLicense
	}

	fmt.Fprintf(&b, "# %s\n\n%s\n\n## Contents\n\n", titleCaser.String(name), description)
	for _, entry := range m.Files {
		fmt.Fprintf(&b, "- %s (%s)\n", entry.Name, entry.Type)
	}
	fmt.Fprintf(&b, "\n## Created\n\n%s\n\n## License\n\n%s\n", m.CreatedAt.Format(dateLayout), license)
	return b.String()
}

func renderLicense(text string, created time.Time) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	return fmt.Sprintf(`Digital Product License

This digital product is licensed for personal and commercial use.
Redistribution is not permitted without explicit permission.

Created: %s
`, created.Format(dateLayout))
}

// uniqueName returns name, or name with -2, -3, ... before the extension when
// it is already taken.
func uniqueName(name string, used map[string]struct{}) string {
	candidate := name
	if _, taken := used[candidate]; taken {
		base, ext := fileutil.SplitExt(name)
		for i := 2; ; i++ {
			candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
			if _, taken := used[candidate]; !taken {
				break
			}
		}
	}
	used[candidate] = struct{}{}
	return candidate
}
