package detection

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizeName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// Find returns the detections whose name or national ID contains query,
// ignoring case and diacritics. An empty query returns every detection.
func (r *Result) Find(query string) []Detection {
	if r == nil {
		return nil
	}
	q := NormalizeName(query)
	out := make([]Detection, 0, len(r.Detections))
	for _, d := range r.Detections {
		if q == "" ||
			strings.Contains(NormalizeName(d.Name), q) ||
			strings.Contains(strings.ToLower(d.NationalID), q) {
			out = append(out, d)
		}
	}
	return out
}
