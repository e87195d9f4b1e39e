package ingest

import (
	"strings"
	"unicode/utf8"
)

// curlyQuotes folds typographic double quotes to ASCII before scanning.
var curlyQuotes = strings.NewReplacer("“", `"`, "”", `"`)

// Tokenize splits one logical row into cleaned fields.
//
// A row containing any double quote (ASCII or typographic) is scanned by a
// quote-aware state machine that treats every separator candidate as a
// field terminator. A row without quotes is split on the single separator
// LineDetector picks for it.
func Tokenize(row string) RawRow {
	if strings.TrimSpace(row) == "" {
		return RawRow{}
	}
	if strings.ContainsAny(row, `"“”`) {
		return tokenizeQuoted(row)
	}
	return tokenizeUnquoted(row)
}

func tokenizeQuoted(row string) RawRow {
	runes := []rune(curlyQuotes.Replace(row))

	var (
		fields   RawRow
		field    strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				field.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case !inQuotes && isFieldTerminator(c):
			fields = append(fields, Clean(field.String()))
			field.Reset()
		default:
			field.WriteRune(c)
		}
	}
	return append(fields, Clean(field.String()))
}

func tokenizeUnquoted(row string) RawRow {
	sep := LineDetector.Detect(row)
	parts := strings.Split(row, string(sep))
	fields := make(RawRow, len(parts))
	for i, p := range parts {
		fields[i] = Clean(p)
	}
	return fields
}

func isFieldTerminator(r rune) bool {
	switch r {
	case ',', '，', ';', '；', '\t':
		return true
	}
	return false
}

// wrapPairs are the quote pairs Clean strips from around a value.
var wrapPairs = [][2]string{
	{`"`, `"`},
	{"“", "”"},
	{"”", "”"},
	{"'", "'"},
	{"‘", "’"},
}

// Clean trims a field, strips one layer of wrapping quotes and resolves
// escaped quotes, \n and \t. The pass repeats until the value stops
// changing, so Clean(Clean(v)) == Clean(v) for every v. Each pass that
// changes the value makes it shorter, which bounds the loop.
func Clean(v string) string {
	for {
		next := cleanOnce(v)
		if next == v {
			return v
		}
		v = next
	}
}

func cleanOnce(v string) string {
	v = strings.TrimSpace(v)
	if utf8.RuneCountInString(v) > 1 {
		for _, p := range wrapPairs {
			if strings.HasPrefix(v, p[0]) && strings.HasSuffix(v, p[1]) && len(v) >= len(p[0])+len(p[1]) {
				v = v[len(p[0]) : len(v)-len(p[1])]
				break
			}
		}
	}
	v = strings.ReplaceAll(v, `""`, `"`)
	v = strings.ReplaceAll(v, `\"`, `"`)
	v = strings.ReplaceAll(v, `\n`, "\n")
	v = strings.ReplaceAll(v, `\t`, "\t")
	return strings.TrimSpace(v)
}
