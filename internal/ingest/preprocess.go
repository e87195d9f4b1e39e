package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// blankRun matches two or more newlines with only whitespace between them.
var blankRun = regexp.MustCompile(`\n\s*\n`)

// Normalize prepares raw text for splitting. It replaces invalid UTF-8,
// drops a leading byte-order mark, rewrites CRLF and bare CR to LF,
// collapses blank lines and trims the result. Empty output means the input
// held nothing usable.
func Normalize(text string) string {
	text = SanitizeUTF8(text)
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRun.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// SanitizeUTF8 replaces every invalid byte with U+FFFD.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.WriteString(s[:size])
		}
		s = s[size:]
	}
	return b.String()
}

// StandardizeDelimiters rewrites the document's dominant separator to a
// comma. Separators inside quoted spans are left alone, so quoted free text
// keeps its punctuation.
func StandardizeDelimiters(text string) string {
	sep := DocumentDetector.Detect(text)
	if sep == ',' || !strings.ContainsRune(text, sep) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	var q quoteState
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if skip := q.step(runes, i); skip > 0 {
			b.WriteString(string(runes[i : i+skip+1]))
			i += skip
			continue
		}
		if c == sep && !q.open {
			b.WriteRune(',')
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// quoteClosers pairs every opening quote with the character that closes it.
var quoteClosers = map[rune]rune{
	'"': '"',
	'“': '”',
	'”': '”',
}

// quoteState tracks whether a scan is inside a quoted span.
type quoteState struct {
	open   bool
	closer rune
}

// step advances the state for runes[i]. It returns 1 when runes[i] and
// runes[i+1] form a doubled closing quote, which is literal content and
// must be consumed as a pair; otherwise 0.
func (q *quoteState) step(runes []rune, i int) int {
	c := runes[i]
	if q.open {
		if c != q.closer {
			return 0
		}
		if i+1 < len(runes) && runes[i+1] == q.closer {
			return 1
		}
		q.open = false
		return 0
	}
	if closer, ok := quoteClosers[c]; ok {
		q.open = true
		q.closer = closer
	}
	return 0
}
