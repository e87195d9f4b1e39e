package ingest

// DelimiterCandidates lists the separators the detector counts. Order
// matters: on equal counts the earlier candidate wins.
var DelimiterCandidates = []rune{'\t', ',', '，', ';', '；'}

// Detector picks the dominant separator in a sample.
type Detector struct {
	Candidates []rune
	// Default is returned when no candidate occurs in the sample.
	Default rune
}

// DocumentDetector runs over a whole document before standardization.
var DocumentDetector = Detector{Candidates: DelimiterCandidates, Default: ','}

// LineDetector runs over a single unquoted row. Tab is the default because
// unquoted rows are usually pasted straight from a spreadsheet.
var LineDetector = Detector{Candidates: DelimiterCandidates, Default: '\t'}

// Counts returns the number of occurrences of every candidate in sample.
func (d Detector) Counts(sample string) map[rune]int {
	counts := make(map[rune]int, len(d.Candidates))
	for _, c := range d.Candidates {
		counts[c] = 0
	}
	for _, r := range sample {
		if _, ok := counts[r]; ok {
			counts[r]++
		}
	}
	return counts
}

// Detect returns the candidate with the strictly highest count.
func (d Detector) Detect(sample string) rune {
	counts := d.Counts(sample)
	best, bestCount := d.Default, 0
	for _, c := range d.Candidates {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

// DelimiterName renders a separator for reports and logs.
func DelimiterName(r rune) string {
	switch r {
	case '\t':
		return "tab"
	case ',':
		return "comma"
	case '，':
		return "fullwidth-comma"
	case ';':
		return "semicolon"
	case '；':
		return "fullwidth-semicolon"
	default:
		return string(r)
	}
}
