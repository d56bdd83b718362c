package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	horizontalSpace  = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	pageNumberLine   = regexp.MustCompile(`(?m)^[ \t]*\d{1,4}[ \t]*$`)
	pageLabelLine    = regexp.MustCompile(`(?mi)^[ \t]*page[ \t]+\d+([ \t]*(of|/)[ \t]*\d+)?[ \t]*$`)
	hyphenLineBreak  = regexp.MustCompile(`([a-z])-\n[ \t]*([a-z])`)
	trailingSpace    = regexp.MustCompile(`(?m)[ \t]+$`)
	repeatedNewlines = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalises the raw text of one page.
// It collapses horizontal whitespace, drops standalone page numbers and
// "Page N" lines and re-joins words hyphenated across a line break.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, " ")
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = pageNumberLine.ReplaceAllString(text, "")
	text = pageLabelLine.ReplaceAllString(text, "")
	text = hyphenLineBreak.ReplaceAllString(text, "$1$2")
	text = trailingSpace.ReplaceAllString(text, "")
	text = repeatedNewlines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// TextPreview shortens text to max runes.
// The preview ends at a sentence boundary when one exists in its second half,
// otherwise it is cut and suffixed with "...".
func TextPreview(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	cut := string(runes[:max])
	end := -1
	for i := len(cut) - 1; i > 0; i-- {
		if strings.ContainsRune(".!?", rune(cut[i])) && (i == len(cut)-1 || cut[i+1] == ' ' || cut[i+1] == '\n') {
			end = i
			break
		}
	}
	if end >= 0 && utf8.RuneCountInString(cut[:end]) > max/2 {
		return cut[:end+1]
	}

	return strings.TrimSpace(cut) + "..."
}
