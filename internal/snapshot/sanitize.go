package snapshot

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// nameSeparator replaces path separators in blob names. Backup blobs live
// in a flat namespace that rejects slashes, so nested paths are flattened
// to a single reserved character and restored on the way back.
const nameSeparator = `\`

// SanitizeName converts a config-dir-relative path into a flat blob name:
// forward slashes become the reserved separator and the result is Unicode
// NFC normalized so the same file yields the same key on every platform.
func SanitizeName(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = strings.Trim(rel, "/")

	return norm.NFC.String(strings.ReplaceAll(rel, "/", nameSeparator))
}

// RestoreName undoes SanitizeName, yielding a config-dir-relative path.
func RestoreName(name string) string {
	return strings.ReplaceAll(name, nameSeparator, "/")
}
