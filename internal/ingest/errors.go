package ingest

import (
	"errors"
	"fmt"
)

// Fatal failure kinds. A run that fails returns a *Failure whose Kind is one
// of these; errors.Is matches against the kind.
var (
	ErrEmptyInput       = errors.New("input must not be empty")
	ErrEmptyHeader      = errors.New("no usable header fields")
	ErrTooFewRows       = errors.New("input needs a header row and at least one data row")
	ErrInvalidJSONShape = errors.New("json payload must be an array of objects")
	ErrNoRecordsParsed  = errors.New("no records parsed")
)

// ErrMissingName is returned by Normalizer.Normalize for a blank name. The
// pipeline counts it as a skip; it never aborts a run.
var ErrMissingName = errors.New("name is empty")

// Failure is a fatal ingestion outcome. Report carries the tally so far and
// is always set for ErrNoRecordsParsed.
type Failure struct {
	Kind   error
	Cause  error
	Report *Report
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%v: %v", f.Kind, f.Cause)
	}
	return f.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (f *Failure) Unwrap() []error {
	if f.Cause != nil {
		return []error{f.Kind, f.Cause}
	}
	return []error{f.Kind}
}

// KindName returns the short name of a failure kind, for error codes and
// metrics labels. Unknown errors return "".
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return "EmptyInput"
	case errors.Is(err, ErrEmptyHeader):
		return "EmptyHeader"
	case errors.Is(err, ErrTooFewRows):
		return "TooFewRows"
	case errors.Is(err, ErrInvalidJSONShape):
		return "InvalidJsonShape"
	case errors.Is(err, ErrNoRecordsParsed):
		return "NoRecordsParsed"
	}
	return ""
}

// skipHints are the remediation hints for runs dominated by one skip reason.
var skipHints = map[SkipReason][]string{
	SkipFieldCountMismatch: {
		"check field counts against header",
		"quote fields that contain commas, semicolons or line breaks",
	},
	SkipMissingName: {
		"make sure every row fills the name column (name or 角色名)",
		"compare the file against the import template",
	},
	SkipEmptyLine: {
		"remove rows that contain only separators",
	},
	SkipProcessingError: {
		"text fields must hold plain values, not nested objects or arrays",
	},
}

// Remediation turns a failure into hints for whoever produced the input.
// For ErrNoRecordsParsed the hints follow the dominant skip reason.
func Remediation(err error) []string {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return []string{"the payload was blank after trimming; export or paste the data again"}
	case errors.Is(err, ErrEmptyHeader):
		return []string{"add a header row naming the columns, e.g. name,description,tags"}
	case errors.Is(err, ErrTooFewRows):
		return []string{
			"include a header row followed by at least one data row",
			"check for blank lines at the start or end of the file",
		}
	case errors.Is(err, ErrInvalidJSONShape):
		return []string{`wrap the records in a JSON array: [{"name": "..."}, ...]`}
	case errors.Is(err, ErrNoRecordsParsed):
		var f *Failure
		if errors.As(err, &f) && f.Report != nil {
			if hints := ReportHints(f.Report); len(hints) > 0 {
				return hints
			}
		}
		return skipHints[SkipMissingName]
	}
	return nil
}

// ReportHints returns hints for the dominant skip reason of a report, or nil
// when nothing was skipped.
func ReportHints(r *Report) []string {
	reason := r.DominantSkip()
	if reason == "" {
		return nil
	}
	return append([]string(nil), skipHints[reason]...)
}
