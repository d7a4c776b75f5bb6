package watermark

import "strings"

// DetectRoot returns the single top-level directory shared by every entry,
// or "" when the archive is not packed under one folder. The first entry
// must itself be the directory entry.
func DetectRoot(names []string) string {
	if len(names) == 0 {
		return ""
	}
	candidate := names[0]
	if !strings.HasSuffix(candidate, "/") {
		return ""
	}
	for _, name := range names[1:] {
		if !strings.HasPrefix(name, candidate) {
			return ""
		}
	}
	return candidate
}
