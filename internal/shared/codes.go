package shared

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

// NormalizeCode trims and upper-cases a catalog or type code.
func NormalizeCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}

// NormalizeCodes normalizes, drops blanks and deduplicates codes. Output is sorted.
func NormalizeCodes(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = NormalizeCode(c)
		if c == "" {
			continue
		}
		unique[c] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for c := range unique {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
