package ingest

import "strings"

// SplitRows groups physical lines into logical rows. A line that ends
// inside a quoted span is joined to the next one with a newline, so a
// multi-paragraph quoted field stays in one row. Blank lines between rows
// are dropped. Whatever is still buffered after the last line is emitted
// as a final row even if its quote never closed.
func SplitRows(text string) []LogicalRow {
	var (
		rows    []LogicalRow
		buf     strings.Builder
		q       quoteState
		pending bool
		start   int
	)

	for i, line := range strings.Split(text, "\n") {
		if !pending {
			if strings.TrimSpace(line) == "" {
				continue
			}
			pending = true
			start = i + 1
		} else {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)

		runes := []rune(line)
		for j := 0; j < len(runes); j++ {
			j += q.step(runes, j)
		}

		if !q.open {
			rows = append(rows, LogicalRow{Text: strings.TrimSpace(buf.String()), Line: start})
			buf.Reset()
			pending = false
		}
	}

	if pending {
		if rest := strings.TrimSpace(buf.String()); rest != "" {
			rows = append(rows, LogicalRow{Text: rest, Line: start})
		}
	}
	return rows
}
