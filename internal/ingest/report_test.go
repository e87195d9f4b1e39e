package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport_SuccessRate(t *testing.T) {
	r := &Report{TotalRows: 5, HeaderRows: 1, Accepted: 3}
	assert.InDelta(t, 0.75, r.SuccessRate(), 1e-9)

	empty := &Report{TotalRows: 1, HeaderRows: 1}
	assert.Zero(t, empty.SuccessRate())
}

func TestReport_LowYield(t *testing.T) {
	tests := []struct {
		name     string
		accepted int
		expected int
		ratio    float64
		want     bool
	}{
		{name: "well below default ratio", accepted: 400, expected: 560, want: true},
		{name: "above default ratio", accepted: 450, expected: 560, want: false},
		{name: "exactly at ratio", accepted: 8, expected: 10, want: false},
		{name: "custom ratio", accepted: 450, expected: 560, ratio: 0.9, want: true},
		{name: "no expectation", accepted: 0, expected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Accepted: tt.accepted}
			assert.Equal(t, tt.want, r.LowYield(tt.expected, tt.ratio))
		})
	}
}

func TestReport_SkipCap(t *testing.T) {
	r := newReport("csv", 2, DefaultTag)
	for i := 1; i <= 3; i++ {
		r.skip(SkipMissingName, i, i+1, "name is empty", "row")
	}

	assert.Equal(t, 3, r.MissingName)
	assert.Len(t, r.Skips, 2)
	assert.Equal(t, 1, r.SkipsDropped)
	assert.Equal(t, 3, r.Skipped())
}

func TestReport_Accept(t *testing.T) {
	r := newReport("csv", DefaultMaxSkipDetails, DefaultTag)
	r.accept(Record{Type: TypeAnime, Tags: []string{DefaultTag}})
	r.accept(Record{Type: TypeAnime, Description: "d", Prompt: "p", Tags: []string{"magic"}, IsOfficial: true})

	assert.Equal(t, 2, r.Accepted)
	assert.Equal(t, 2, r.TypeDistribution[TypeAnime])
	assert.Equal(t, Quality{WithDescription: 1, WithPrompt: 1, WithCustomTags: 1, Official: 1}, r.Quality)
}

func TestReport_DominantSkip(t *testing.T) {
	r := &Report{}
	assert.Equal(t, SkipReason(""), r.DominantSkip())

	r.MissingName = 2
	r.FieldCountMismatch = 2
	assert.Equal(t, SkipFieldCountMismatch, r.DominantSkip(), "ties go to the earlier reason")

	r.ProcessingError = 5
	assert.Equal(t, SkipProcessingError, r.DominantSkip())
}

func TestReport_String(t *testing.T) {
	r := &Report{Dialect: "csv", TotalRows: 5, HeaderRows: 1, Accepted: 3, MissingName: 1}
	assert.Equal(t, "csv: accepted 3 of 4 rows (75.0%), skipped: missingName=1", r.String())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, `a\nb`, preview("a\nb"))

	long := strings.Repeat("樱", previewRunes+10)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, previewRunes+3, len([]rune(got)))
}

func TestFailure(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := error(&Failure{Kind: ErrInvalidJSONShape, Cause: cause})

	assert.ErrorIs(t, err, ErrInvalidJSONShape)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "json payload must be an array of objects: unexpected EOF", err.Error())

	wrapped := fmt.Errorf("import: %w", err)
	var f *Failure
	assert.ErrorAs(t, wrapped, &f)
	assert.Equal(t, "InvalidJsonShape", KindName(wrapped))
}

func TestKindName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: &Failure{Kind: ErrEmptyInput}, want: "EmptyInput"},
		{err: &Failure{Kind: ErrEmptyHeader}, want: "EmptyHeader"},
		{err: &Failure{Kind: ErrTooFewRows}, want: "TooFewRows"},
		{err: &Failure{Kind: ErrInvalidJSONShape}, want: "InvalidJsonShape"},
		{err: &Failure{Kind: ErrNoRecordsParsed}, want: "NoRecordsParsed"},
		{err: errors.New("other"), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, KindName(tt.err))
		})
	}
}

func TestRemediation(t *testing.T) {
	assert.Contains(t, Remediation(&Failure{Kind: ErrTooFewRows}),
		"include a header row followed by at least one data row")

	mismatch := &Failure{Kind: ErrNoRecordsParsed, Report: &Report{FieldCountMismatch: 3, MissingName: 1}}
	assert.Contains(t, Remediation(mismatch), "check field counts against header")

	noReport := &Failure{Kind: ErrNoRecordsParsed}
	assert.Equal(t, skipHints[SkipMissingName], Remediation(noReport))

	assert.Nil(t, Remediation(errors.New("disk full")))
}
