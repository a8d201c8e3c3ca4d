package utils

import "strings"

// Truncate collapses s onto one line and cuts it to at most maxLen runes,
// marking the cut with "...".
func Truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimRight(string(runes[:maxLen]), " ") + "..."
}
