package trigger

import "strings"

// MatchesKeywords reports whether any non-empty keyword appears in the
// content. Matching is case-insensitive substring containment, not exact
// word matching or regex. An empty keyword list never matches.
func MatchesKeywords(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	lowered := strings.ToLower(content)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
