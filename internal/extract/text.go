package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripControl drops invalid UTF-8 and control characters other than newlines and tabs.
func stripControl(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return '\n'
		}
		if unicode.IsControl(r) || r == utf8.RuneError || !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// keepAlnumLines trims each line and keeps the ones holding a letter or digit.
func keepAlnumLines(s string) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if strings.IndexFunc(line, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
