package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SkipReason is the category recorded for a row left out of the output.
type SkipReason string

const (
	SkipEmptyLine          SkipReason = "emptyLine"
	SkipFieldCountMismatch SkipReason = "fieldCountMismatch"
	SkipMissingName        SkipReason = "missingName"
	SkipProcessingError    SkipReason = "processingError"
)

// SkipReasons lists every reason in reporting order.
var SkipReasons = []SkipReason{
	SkipEmptyLine,
	SkipFieldCountMismatch,
	SkipMissingName,
	SkipProcessingError,
}

// DefaultLowYieldRatio flags a run that accepted fewer than 80% of the
// records the caller expected.
const DefaultLowYieldRatio = 0.8

// DefaultMaxSkipDetails caps the per-row skip entries kept in a report.
const DefaultMaxSkipDetails = 100

// previewRunes bounds the row text copied into a skip entry.
const previewRunes = 120

// RowSkip describes one rejected row.
type RowSkip struct {
	Row     int        `json:"row"`
	Line    int        `json:"line,omitempty"`
	Reason  SkipReason `json:"reason"`
	Detail  string     `json:"detail,omitempty"`
	Preview string     `json:"preview,omitempty"`
}

// Quality counts how many accepted records carry optional content.
type Quality struct {
	WithDescription int `json:"withDescription"`
	WithPrompt      int `json:"withPrompt"`
	WithCustomTags  int `json:"withCustomTags"`
	Official        int `json:"official"`
}

// Report is the outcome tally of one run. It is built by the pipeline and
// read-only once returned.
type Report struct {
	Dialect   string `json:"dialect"`
	Delimiter string `json:"delimiter,omitempty"`

	// TotalRows counts logical rows (delimited) or array elements (JSON),
	// header included.
	TotalRows  int `json:"totalRows"`
	HeaderRows int `json:"headerRows"`

	Accepted           int `json:"accepted"`
	EmptyLine          int `json:"emptyLine"`
	FieldCountMismatch int `json:"fieldCountMismatch"`
	MissingName        int `json:"missingName"`
	ProcessingError    int `json:"processingError"`

	Header            []string `json:"header,omitempty"`
	HeaderSynthesized bool     `json:"headerSynthesized,omitempty"`

	TypeDistribution map[CharacterType]int `json:"typeDistribution"`
	Quality          Quality               `json:"quality"`

	Skips        []RowSkip `json:"skips,omitempty"`
	SkipsDropped int       `json:"skipsDropped,omitempty"`

	maxSkips   int
	defaultTag string
}

func newReport(dialect string, maxSkips int, defaultTag string) *Report {
	if maxSkips < 0 {
		maxSkips = 0
	}
	return &Report{
		Dialect:          dialect,
		TypeDistribution: make(map[CharacterType]int),
		maxSkips:         maxSkips,
		defaultTag:       defaultTag,
	}
}

func (r *Report) accept(rec Record) {
	r.Accepted++
	r.TypeDistribution[rec.Type]++
	if rec.Description != "" {
		r.Quality.WithDescription++
	}
	if rec.Prompt != "" {
		r.Quality.WithPrompt++
	}
	if !(len(rec.Tags) == 1 && rec.Tags[0] == r.defaultTag) {
		r.Quality.WithCustomTags++
	}
	if rec.IsOfficial {
		r.Quality.Official++
	}
}

func (r *Report) skip(reason SkipReason, row, line int, detail, text string) {
	switch reason {
	case SkipEmptyLine:
		r.EmptyLine++
	case SkipFieldCountMismatch:
		r.FieldCountMismatch++
	case SkipMissingName:
		r.MissingName++
	default:
		r.ProcessingError++
	}

	if len(r.Skips) >= r.maxSkips {
		r.SkipsDropped++
		return
	}
	r.Skips = append(r.Skips, RowSkip{
		Row:     row,
		Line:    line,
		Reason:  reason,
		Detail:  detail,
		Preview: preview(text),
	})
}

// Skipped is the number of rows rejected for any reason.
func (r *Report) Skipped() int {
	return r.EmptyLine + r.FieldCountMismatch + r.MissingName + r.ProcessingError
}

// DataRows is the number of rows after the header.
func (r *Report) DataRows() int {
	return r.TotalRows - r.HeaderRows
}

// SuccessRate is accepted / (total - header), or 0 without data rows.
func (r *Report) SuccessRate() float64 {
	if r.DataRows() <= 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.DataRows())
}

// Histogram maps every skip reason to its count, zeros included.
func (r *Report) Histogram() map[SkipReason]int {
	return map[SkipReason]int{
		SkipEmptyLine:          r.EmptyLine,
		SkipFieldCountMismatch: r.FieldCountMismatch,
		SkipMissingName:        r.MissingName,
		SkipProcessingError:    r.ProcessingError,
	}
}

// DominantSkip returns the most frequent skip reason, or "" when nothing
// was skipped. Ties go to the reason listed first in SkipReasons.
func (r *Report) DominantSkip() SkipReason {
	h := r.Histogram()
	var best SkipReason
	bestCount := 0
	for _, reason := range SkipReasons {
		if h[reason] > bestCount {
			best, bestCount = reason, h[reason]
		}
	}
	return best
}

// LowYield reports whether the run accepted fewer than ratio*expected
// records. expected <= 0 disables the check; ratio <= 0 uses
// DefaultLowYieldRatio.
func (r *Report) LowYield(expected int, ratio float64) bool {
	if expected <= 0 {
		return false
	}
	if ratio <= 0 {
		ratio = DefaultLowYieldRatio
	}
	return float64(r.Accepted) < float64(expected)*ratio
}

// Issues lists notable problems in human-readable form.
func (r *Report) Issues() []string {
	var issues []string
	if r.MissingName > 0 {
		issues = append(issues, fmt.Sprintf("%d rows have no name", r.MissingName))
	}
	if r.FieldCountMismatch > 0 {
		issues = append(issues, fmt.Sprintf("%d rows have fewer fields than the header", r.FieldCountMismatch))
	}
	if r.ProcessingError > 0 {
		issues = append(issues, fmt.Sprintf("%d rows could not be normalized", r.ProcessingError))
	}
	if r.Accepted > 0 && float64(r.Quality.WithDescription) < float64(r.Accepted)*DefaultLowYieldRatio {
		issues = append(issues, fmt.Sprintf("%d records have no description", r.Accepted-r.Quality.WithDescription))
	}
	return issues
}

// String renders a one-line summary for logs and the CLI.
func (r *Report) String() string {
	h := r.Histogram()
	parts := make([]string, 0, len(h))
	for _, reason := range SkipReasons {
		if h[reason] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, h[reason]))
		}
	}
	skips := "none"
	if len(parts) > 0 {
		skips = strings.Join(parts, " ")
	}
	return fmt.Sprintf("%s: accepted %d of %d rows (%.1f%%), skipped: %s",
		r.Dialect, r.Accepted, r.DataRows(), r.SuccessRate()*100, skips)
}

func preview(text string) string {
	text = strings.ReplaceAll(text, "\n", `\n`)
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}
