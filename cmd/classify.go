package cmd

import (
	"slices"
	"strings"
)

// severityKeywords are checked most severe first; the first match wins.
var severityKeywords = []struct {
	severity string
	keywords []string
}{
	{"fatal", []string{"data loss", "corrupt", "production down", "security", "p0"}},
	{"critical", []string{"crash", "panic", "segfault", "hang", "blocker", "urgent", "p1"}},
	{"serious", []string{"not working", "broken", "regression", "fail", "error", "wrong"}},
	{"wishlist", []string{"nice to have", "would be nice", "feature request", "idea"}},
	{"minor", []string{"typo", "cosmetic", "trivial", "spelling", "wording"}},
}

// guessSeverity infers a severity from a bug summary using keyword
// heuristics. Only severities in allowed are returned. Empty means no
// keyword matched and the default applies.
func guessSeverity(summary string, allowed []string) string {
	lower := strings.ToLower(summary)
	for _, group := range severityKeywords {
		if !slices.Contains(allowed, group.severity) {
			continue
		}
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.severity
			}
		}
	}
	return ""
}
