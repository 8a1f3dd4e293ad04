// Package identifier derives catalog part numbers from filenames and user
// input.
package identifier

import (
	"path"
	"regexp"
	"strings"
)

// MinInferredLength is the shortest identifier accepted from a filename.
const MinInferredLength = 3

var disallowed = regexp.MustCompile(`[^A-Za-z0-9\-_]`)

// Normalize trims and upper-cases s. Every stored or compared part number
// goes through it.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// FromFileName strips the last extension and every character outside
// [A-Za-z0-9-_]. It reports false when fewer than MinInferredLength
// characters remain; that is an unmatched outcome, not an error.
func FromFileName(name string) (string, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	id := Normalize(disallowed.ReplaceAllString(base, ""))
	if len(id) < MinInferredLength {
		return "", false
	}
	return id, true
}

// FromExplicit accepts any user-asserted identifier, however short.
func FromExplicit(input string) string {
	return Normalize(input)
}
