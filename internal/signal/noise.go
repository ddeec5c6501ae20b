package signal

import (
	"regexp"
	"strings"
)

var (
	reGlyphs     = regexp.MustCompile(`[®◄🔷#&©]`)
	reClock      = regexp.MustCompile(`(?i)\d+:\d+\s*(?:AM|PM)`)
	reViewCount  = regexp.MustCompile(`(?i)\d+\.\d+K`)
	reChatChrome = regexp.MustCompile(`(?i)NN\s*vi\s*\d+\s*\)\s*\d+\s*v\s*:`)
)

// StripNoise removes chat UI artifacts (bullet glyphs, timestamps, view
// counters) and collapses whitespace. It repeats until the text stops
// changing, so StripNoise(StripNoise(s)) == StripNoise(s).
func StripNoise(s string) string {
	for {
		next := stripOnce(s)
		if next == s {
			return next
		}
		s = next
	}
}

func stripOnce(s string) string {
	s = reGlyphs.ReplaceAllString(s, " ")
	s = reClock.ReplaceAllString(s, "")
	s = reViewCount.ReplaceAllString(s, "")
	s = reChatChrome.ReplaceAllString(s, "")
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}
