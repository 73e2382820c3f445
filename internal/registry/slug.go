package registry

import (
	"regexp"
	"strconv"
	"strings"
)

// slugPattern is the full slug grammar: lowercase-letter start, then
// lowercase alphanumerics and hyphens, bounded length.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,47}$`)

// ValidSlug reports whether s is a well-formed slug.
func ValidSlug(s string) bool { return slugPattern.MatchString(s) }

// Slugify derives a slug from a display name. If nothing usable remains
// (e.g. the name is all punctuation), it falls back to "topic-<threadID>".
//
// Slugs are generated once at record creation (or during migration for
// legacy records) and never regenerated afterwards.
func Slugify(name string, threadID int) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphens
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > MaxSlugLen {
		s = strings.Trim(s[:MaxSlugLen], "-")
	}
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return "topic-" + strconv.Itoa(threadID)
	}
	return s
}
