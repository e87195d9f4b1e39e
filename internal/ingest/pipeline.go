package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ContextCheckInterval is how many rows run between cancellation checks.
var ContextCheckInterval = 100

// maxIDAttempts bounds regeneration when an identifier repeats within a run.
const maxIDAttempts = 5

var errDuplicateID = errors.New("could not generate a unique id")

// Result is the output of a successful run.
type Result struct {
	Records []Record `json:"records"`
	Report  *Report  `json:"report"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithNormalizer replaces the record normalizer. Zero-valued fields of n
// are filled from NewNormalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.normalizer = completeNormalizer(*n)
		}
	}
}

// WithStandardize overrides the dialect's delimiter standardization.
func WithStandardize(enabled bool) Option {
	return func(p *Pipeline) { p.standardize = enabled }
}

// WithMaxSkipDetails caps the per-row skip entries kept in the report.
func WithMaxSkipDetails(n int) Option {
	return func(p *Pipeline) { p.maxSkips = n }
}

// Pipeline ingests payloads of one dialect. It holds configuration only;
// all per-run state lives inside each call.
type Pipeline struct {
	dialect     Dialect
	resolver    *HeaderResolver
	normalizer  Normalizer
	logger      *slog.Logger
	standardize bool
	maxSkips    int
}

// New builds a pipeline for d.
func New(d Dialect, opts ...Option) *Pipeline {
	p := &Pipeline{
		dialect:     d,
		resolver:    d.Resolver(),
		normalizer:  *NewNormalizer(),
		logger:      slog.Default(),
		standardize: d.Standardize,
		maxSkips:    DefaultMaxSkipDetails,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dialect returns the dialect the pipeline was built for.
func (p *Pipeline) Dialect() Dialect { return p.dialect }

func completeNormalizer(n Normalizer) Normalizer {
	def := StandardDefaults()
	if n.Defaults.Personality == "" {
		n.Defaults.Personality = def.Personality
	}
	if n.Defaults.Source == "" {
		n.Defaults.Source = def.Source
	}
	if n.Defaults.Creator == "" {
		n.Defaults.Creator = def.Creator
	}
	if n.Defaults.Tag == "" {
		n.Defaults.Tag = def.Tag
	}
	if n.Images == nil {
		n.Images = RandomImages
	}
	if n.NewID == nil {
		n.NewID = uuid.NewString
	}
	return n
}

// Run ingests data according to the dialect's format.
func (p *Pipeline) Run(ctx context.Context, data []byte) (*Result, error) {
	if p.dialect.Format == FormatJSON {
		return p.IngestJSON(ctx, data)
	}
	return p.Ingest(ctx, string(data))
}

// IngestReader reads r to the end through the streaming BOM and UTF-8
// filters, then runs the pipeline. size may be 0 when unknown.
func (p *Pipeline) IngestReader(ctx context.Context, r io.Reader, size int64) (*Result, error) {
	cr := WrapForStreaming(r, size)
	data, err := io.ReadAll(cr)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	p.logger.Debug("input read", "dialect", p.dialect.Name, "bytes", cr.BytesRead)
	return p.Run(ctx, data)
}

// Ingest runs the delimited-text path over text.
func (p *Pipeline) Ingest(ctx context.Context, text string) (*Result, error) {
	report := newReport(p.dialect.Name, p.maxSkips, p.normalizer.Defaults.Tag)

	text = Normalize(text)
	if text == "" {
		return nil, p.fail(report, ErrEmptyInput, nil)
	}

	report.Delimiter = DelimiterName(DocumentDetector.Detect(text))
	if p.standardize {
		text = StandardizeDelimiters(text)
	}

	rows := SplitRows(text)
	report.TotalRows = len(rows)
	if len(rows) < 2 {
		return nil, p.fail(report, ErrTooFewRows, nil)
	}

	header, err := p.resolver.Resolve(rows[0], rows[1:])
	if err != nil {
		return nil, p.fail(report, ErrEmptyHeader, nil)
	}
	report.HeaderRows = 1
	report.Header = header.Names()
	report.HeaderSynthesized = header.Synthesized()
	if header.Synthesized() {
		p.logger.Info("header not recognized, synthesized canonical header",
			"dialect", p.dialect.Name,
			"fields", header.Len(),
		)
	}

	seen := make(map[string]struct{}, len(rows))
	records := make([]Record, 0, len(rows)-1)

	for i, row := range rows[1:] {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("ingest cancelled: %w", err)
			}
		}
		index := i + 1

		fields := Tokenize(row.Text)
		if isBlankRow(fields) {
			p.skip(report, SkipEmptyLine, index, row, "row has no values")
			continue
		}
		if len(fields) < header.Len() {
			p.skip(report, SkipFieldCountMismatch, index, row,
				fmt.Sprintf("expected %d fields, got %d", header.Len(), len(fields)))
			continue
		}
		if len(fields) > header.Len() {
			p.logger.Debug("row truncated to header length",
				"row", index,
				"line", row.Line,
				"fields", len(fields),
				"header", header.Len(),
			)
			fields = fields[:header.Len()]
		}

		rec, err := p.normalize(header.Zip(fields), seen)
		switch {
		case errors.Is(err, ErrMissingName):
			p.skip(report, SkipMissingName, index, row, err.Error())
		case err != nil:
			p.skip(report, SkipProcessingError, index, row, err.Error())
		default:
			report.accept(rec)
			records = append(records, rec)
		}
	}

	return p.finish(records, report)
}

// IngestJSON runs the JSON path. The payload must be an array; each element
// that is an object is normalized, anything else counts as a processing
// error.
func (p *Pipeline) IngestJSON(ctx context.Context, data []byte) (*Result, error) {
	report := newReport(p.dialect.Name, p.maxSkips, p.normalizer.Defaults.Tag)

	text := Normalize(string(data))
	if text == "" {
		return nil, p.fail(report, ErrEmptyInput, nil)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, p.fail(report, ErrInvalidJSONShape, err)
	}
	items, ok := payload.([]any)
	if !ok {
		return nil, p.fail(report, ErrInvalidJSONShape, fmt.Errorf("got %s", jsonKind(payload)))
	}

	report.TotalRows = len(items)
	seen := make(map[string]struct{}, len(items))
	records := make([]Record, 0, len(items))

	for i, item := range items {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("ingest cancelled: %w", err)
			}
		}
		row := LogicalRow{Text: jsonPreview(item)}

		obj, ok := item.(map[string]any)
		if !ok {
			p.skip(report, SkipProcessingError, i, row, fmt.Sprintf("element is %s, not an object", jsonKind(item)))
			continue
		}

		rec, err := p.normalize(obj, seen)
		switch {
		case errors.Is(err, ErrMissingName):
			p.skip(report, SkipMissingName, i, row, err.Error())
		case err != nil:
			p.skip(report, SkipProcessingError, i, row, err.Error())
		default:
			report.accept(rec)
			records = append(records, rec)
		}
	}

	return p.finish(records, report)
}

// normalize runs the normalizer, converting a panic into an error and
// keeping identifiers unique within the run.
func (p *Pipeline) normalize(raw map[string]any, seen map[string]struct{}) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = Record{}, fmt.Errorf("normalize panicked: %v", r)
		}
	}()

	rec, err = p.normalizer.Normalize(raw)
	if err != nil {
		return Record{}, err
	}
	for attempt := 0; rec.ID == "" || isSeen(seen, rec.ID); attempt++ {
		if attempt >= maxIDAttempts {
			return Record{}, errDuplicateID
		}
		rec.ID = p.normalizer.NewID()
	}
	seen[rec.ID] = struct{}{}
	return rec, nil
}

func isSeen(seen map[string]struct{}, id string) bool {
	_, ok := seen[id]
	return ok
}

func (p *Pipeline) skip(report *Report, reason SkipReason, index int, row LogicalRow, detail string) {
	report.skip(reason, index, row.Line, detail, row.Text)
	p.logger.Debug("row skipped",
		"dialect", p.dialect.Name,
		"row", index,
		"line", row.Line,
		"reason", reason,
		"detail", detail,
	)
}

func (p *Pipeline) fail(report *Report, kind, cause error) error {
	p.logger.Warn("ingest failed",
		"dialect", p.dialect.Name,
		"kind", KindName(kind),
		"error", cause,
	)
	return &Failure{Kind: kind, Cause: cause, Report: report}
}

func (p *Pipeline) finish(records []Record, report *Report) (*Result, error) {
	if report.Accepted == 0 {
		p.logger.Warn("ingest produced no records",
			"dialect", p.dialect.Name,
			"rows", report.DataRows(),
			"histogram", report.Histogram(),
		)
		return nil, &Failure{Kind: ErrNoRecordsParsed, Report: report}
	}

	p.logger.Info("ingest complete",
		"dialect", p.dialect.Name,
		"rows", report.DataRows(),
		"accepted", report.Accepted,
		"skipped", report.Skipped(),
		"success_rate", report.SuccessRate(),
	)
	return &Result{Records: records, Report: report}, nil
}

func isBlankRow(fields RawRow) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func jsonPreview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
