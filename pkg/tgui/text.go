package tgui

import (
	"strings"
	"unicode/utf8"
)

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	// Single-pass implementation:
	//  - remember the byte index after the n-th rune
	//  - if there is an (n+1)-th rune, truncate + ellipsis
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// TruncHTML hard-truncates an HTML message to at most n runes, appending
// marker, and ensures the cut never leaves a dangling open tag: if the cut
// point lands inside "<...>" the truncation backs up to before the "<".
func TruncHTML(s string, n int, marker string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	budget := n - utf8.RuneCountInString(marker)
	if budget < 0 {
		budget = 0
	}
	cut := len(s)
	count := 0
	for i := range s {
		if count == budget {
			cut = i
			break
		}
		count++
	}
	head := s[:cut]
	if open := strings.LastIndexByte(head, '<'); open >= 0 {
		if strings.IndexByte(head[open:], '>') < 0 {
			head = head[:open]
		}
	}
	return head + marker
}
