// Package tag builds and recognises the marker that links a calendar entry
// back to its spreadsheet reference. The marker lives in the entry body and
// is the only correlation between runs.
package tag

import "strings"

const (
	Prefix = "[REF:"
	Suffix = "]"
)

// Encode returns the marker for reference, e.g. "[REF:INV-001]".
func Encode(reference string) string {
	return Prefix + strings.TrimSpace(reference) + Suffix
}

// Contains reports whether body carries the marker for reference.
func Contains(body, reference string) bool {
	return strings.Contains(body, Encode(reference))
}

// Valid reports whether reference round-trips unambiguously. References
// containing the suffix can be matched by a longer reference's marker.
// Nothing is escaped; callers may only warn.
func Valid(reference string) bool {
	r := strings.TrimSpace(reference)
	return r != "" && !strings.Contains(r, Suffix) && !strings.Contains(r, Prefix)
}

// BuildBody joins a trimmed description and the marker with a blank line.
// The marker is always last. A blank description yields the marker alone.
func BuildBody(description, reference string) string {
	d := strings.TrimSpace(description)
	if d == "" {
		return Encode(reference)
	}
	return d + "\n\n" + Encode(reference)
}
