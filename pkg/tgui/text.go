package tgui

import "unicode/utf8"

// TruncRunes cuts s to n runes and appends ellipsis when something was
// removed. The ellipsis does not count toward n.
func TruncRunes(s string, n int, ellipsis string) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + ellipsis
		}
		count++
	}
	return s
}
