// Package ingest turns messy character exports into canonical records.
//
// Input is either delimited text (comma, semicolon, tab or their full-width
// variants, optionally quoted, possibly with line breaks inside quoted
// fields) or a JSON array of objects. The pipeline recovers as many records
// as it can and explains every row it had to drop.
//
// # Pipeline
//
// The delimited path runs these stages in order:
//
//  1. [Normalize]: strip the byte-order mark, unify line endings, collapse
//     blank lines, trim.
//  2. [StandardizeDelimiters]: rewrite the dominant separator to a comma
//     outside quoted spans (per dialect).
//  3. [SplitRows]: group physical lines into logical rows by quote balance.
//  4. [HeaderResolver.Resolve]: recognize the header or synthesize one.
//  5. Per data row: [Tokenize], reconcile the field count against the
//     header, [Normalizer.Normalize], tally the outcome in a [Report].
//
// The JSON path decodes the payload and feeds each object straight into the
// normalizer.
//
// # Failures
//
// Per-row problems never abort a run; they are counted under a skip reason
// (emptyLine, fieldCountMismatch, missingName, processingError). Five
// conditions are fatal and come back as a [*Failure]: [ErrEmptyInput],
// [ErrEmptyHeader], [ErrTooFewRows], [ErrInvalidJSONShape] and
// [ErrNoRecordsParsed]. Use [Remediation] to turn either kind of outcome
// into hints for the person who produced the file.
//
// # Concurrency
//
// A [Pipeline] holds configuration only. Every call builds its own header,
// report and output slice, so one Pipeline may serve concurrent callers.
package ingest
