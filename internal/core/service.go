package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/charimport/internal/ingest"
	"github.com/JonMunkholm/charimport/internal/logging"
	"github.com/JonMunkholm/charimport/internal/metrics"
)

// ErrFileTooLarge is returned when a payload exceeds Options.MaxFileSize.
var ErrFileTooLarge = errors.New("file too large")

// DefaultImportTimeout bounds one ingest-and-persist cycle.
const DefaultImportTimeout = 2 * time.Minute

// ImportedDir is the subdirectory ImportDir moves successful files into.
const ImportedDir = "Imported"

// recordTimeout bounds writing the run history after the import context
// may already have expired.
const recordTimeout = 10 * time.Second

// detectSample is how much of a payload dialect detection looks at.
const detectSample = 64 * 1024

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Metrics       *metrics.Registry
	MaxConcurrent int
	MaxWaitTime   time.Duration
	Timeout       time.Duration
	// MaxFileSize rejects larger payloads. Zero disables the check.
	MaxFileSize int64
	// DisableStandardize turns off delimiter standardization for every
	// dialect.
	DisableStandardize bool
	LowYieldRatio      float64
	MaxSkipDetails     int
	// ImageSeed makes default image selection reproducible. Zero picks at
	// random.
	ImageSeed uint64
}

// Service runs imports against a Store.
type Service struct {
	store   Store
	limiter *ImportLimiter
	metrics *metrics.Registry
	opts    Options
	images  ingest.ImagePicker

	newID func() string
	now   func() time.Time
}

// NewService creates a Service over store.
func NewService(store Store, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultImportTimeout
	}
	if opts.LowYieldRatio <= 0 {
		opts.LowYieldRatio = ingest.DefaultLowYieldRatio
	}
	if opts.MaxSkipDetails <= 0 {
		opts.MaxSkipDetails = ingest.DefaultMaxSkipDetails
	}

	s := &Service{
		store:   store,
		limiter: NewImportLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		metrics: opts.Metrics,
		opts:    opts,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	if opts.ImageSeed != 0 {
		s.images = ingest.NewSeededImages(opts.ImageSeed, nil)
	}
	return s
}

// ImportRequest is one payload to preview or import.
type ImportRequest struct {
	// Dialect is a registered dialect name, or "" / "auto" to detect it.
	Dialect  string
	FileName string
	Data     []byte
	// Expected is the record count the caller anticipates, for the
	// low-yield check. Zero disables it.
	Expected int
}

// Outcome is the result of a preview or import.
type Outcome struct {
	// Run is the recorded history entry. It is nil for previews.
	Run      *ImportRun      `json:"run,omitempty"`
	Dialect  string          `json:"dialect"`
	Records  []ingest.Record `json:"records,omitempty"`
	Report   *ingest.Report  `json:"report,omitempty"`
	LowYield bool            `json:"lowYield"`
	Hints    []string        `json:"hints,omitempty"`
}

// Dialects lists the registered dialects.
func (s *Service) Dialects() []ingest.Dialect {
	return ingest.Dialects()
}

// ResolveDialect returns the dialect named in req, detecting it from the
// file name and content when the name is empty or "auto".
func (s *Service) ResolveDialect(req ImportRequest) (ingest.Dialect, error) {
	name := strings.ToLower(strings.TrimSpace(req.Dialect))
	if name == "" || name == DialectAuto {
		sample := req.Data
		if len(sample) > detectSample {
			sample = sample[:detectSample]
		}
		return ingest.DetectDialect(req.FileName, string(sample)), nil
	}
	d, ok := ingest.LookupDialect(name)
	if !ok {
		return ingest.Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
	return d, nil
}

// Preview ingests req without persisting anything.
func (s *Service) Preview(ctx context.Context, req ImportRequest) (*Outcome, error) {
	d, err := s.ResolveDialect(req)
	if err != nil {
		return nil, err
	}
	if err := s.checkSize(req.Data); err != nil {
		return nil, err
	}

	log := logging.WithFields(ctx, "dialect", d.Name, "source", req.FileName, "preview", true)
	res, err := s.pipeline(d, log).IngestReader(ctx, bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		return failureOutcome(d.Name, err), err
	}
	return s.outcome(d.Name, res, req.Expected), nil
}

// Import ingests req, persists the accepted records and records the run.
//
// A fatal ingestion failure is recorded as a failed run; the returned
// Outcome is then non-nil alongside the error so callers can show the
// partial report and remediation hints.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*Outcome, error) {
	start := s.now()

	d, err := s.ResolveDialect(req)
	if err != nil {
		return nil, err
	}
	if err := s.checkSize(req.Data); err != nil {
		s.metrics.ObserveRun(d.Name, metrics.StatusRejected, 0, nil, false)
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		s.metrics.ObserveRun(d.Name, metrics.StatusRejected, 0, nil, false)
		return nil, err
	}
	defer s.limiter.Release()
	s.metrics.ImportStarted()
	defer s.metrics.ImportFinished()

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	run := &ImportRun{
		ID:         s.newID(),
		Dialect:    d.Name,
		FileName:   req.FileName,
		Expected:   req.Expected,
		RemoteAddr: IPAddressFromContext(ctx),
		UserAgent:  UserAgentFromContext(ctx),
		CreatedAt:  start,
	}
	log := logging.WithImport(ctx, run.ID, d.Name, req.FileName)

	res, err := s.pipeline(d, log).IngestReader(ctx, bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		out := failureOutcome(d.Name, err)
		s.finishFailed(ctx, log, run, out.Report, err)
		out.Run = run
		return out, err
	}

	out := s.outcome(d.Name, res, req.Expected)
	run.Report = res.Report
	run.TotalRows = res.Report.TotalRows
	run.Accepted = res.Report.Accepted
	run.Skipped = res.Report.Skipped()
	run.LowYield = out.LowYield
	if out.LowYield {
		log.Warn("import yield below expectation",
			"expected", req.Expected,
			"accepted", res.Report.Accepted,
			"ratio", s.opts.LowYieldRatio,
			"histogram", res.Report.Histogram(),
		)
	}

	if err := s.store.SaveCharacters(ctx, run.ID, res.Records); err != nil {
		err = fmt.Errorf("save characters: %w", err)
		s.finishFailed(ctx, log, run, res.Report, err)
		out.Run = run
		return out, err
	}

	run.Status = StatusSucceeded
	run.DurationMs = s.now().Sub(start).Milliseconds()
	s.record(ctx, log, run)
	s.metrics.ObserveRun(d.Name, metrics.StatusSucceeded, s.now().Sub(start), res.Report, out.LowYield)

	log.Info("import complete",
		"accepted", run.Accepted,
		"skipped", run.Skipped,
		"duration_ms", run.DurationMs,
	)
	out.Run = run
	return out, nil
}

// FileOutcome is the result of importing one file from a directory.
type FileOutcome struct {
	File    string   `json:"file"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
	Moved   bool     `json:"moved"`
}

// ImportDir imports every supported file directly inside dir. Files that
// import successfully are moved into dir/Imported. A failing file does not
// stop the rest.
func (s *Service) ImportDir(ctx context.Context, dir string) ([]FileOutcome, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	exts := importExtensions()
	var results []FileOutcome
	for _, entry := range entries {
		if entry.IsDir() || !exts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		path := filepath.Join(dir, entry.Name())
		fo := FileOutcome{File: entry.Name()}

		data, err := os.ReadFile(path)
		if err != nil {
			fo.Error = fmt.Sprintf("read input: %v", err)
			results = append(results, fo)
			continue
		}

		fo.Outcome, err = s.Import(ctx, ImportRequest{Dialect: DialectAuto, FileName: entry.Name(), Data: data})
		if err != nil {
			fo.Error = err.Error()
			results = append(results, fo)
			continue
		}

		done := filepath.Join(dir, ImportedDir)
		if err := os.MkdirAll(done, 0o755); err != nil {
			slog.Warn("create imported directory", "dir", done, "error", err)
		} else if err := os.Rename(path, filepath.Join(done, entry.Name())); err != nil {
			slog.Warn("move imported file", "file", path, "error", err)
		} else {
			fo.Moved = true
		}
		results = append(results, fo)
	}
	return results, nil
}

// importExtensions is the set of file extensions ImportDir picks up: the
// common text formats plus whatever registered dialects declare.
func importExtensions() map[string]bool {
	exts := map[string]bool{".csv": true, ".tsv": true, ".txt": true, ".json": true}
	for _, d := range ingest.Dialects() {
		for _, e := range d.Extensions {
			exts[strings.ToLower(e)] = true
		}
	}
	return exts
}

// GetImport returns one recorded run.
func (s *Service) GetImport(ctx context.Context, id string) (ImportRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ImportRun{}, fmt.Errorf("import %q: %w", id, ErrNotFound)
	}
	return s.store.GetImport(ctx, id)
}

// ListImports returns recorded runs, newest first.
func (s *Service) ListImports(ctx context.Context, limit, offset int) ([]ImportRun, error) {
	limit, offset = ClampPage(limit, offset)
	return s.store.ListImports(ctx, limit, offset)
}

// ListCharacters returns stored characters matching f.
func (s *Service) ListCharacters(ctx context.Context, f CharacterFilter) ([]Character, error) {
	f.Limit, f.Offset = ClampPage(f.Limit, f.Offset)
	f.Search = strings.TrimSpace(f.Search)
	return s.store.ListCharacters(ctx, f)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until in-flight imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) checkSize(data []byte) error {
	if s.opts.MaxFileSize > 0 && int64(len(data)) > s.opts.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), s.opts.MaxFileSize)
	}
	return nil
}

func (s *Service) pipeline(d ingest.Dialect, log *slog.Logger) *ingest.Pipeline {
	opts := []ingest.Option{
		ingest.WithLogger(log),
		ingest.WithMaxSkipDetails(s.opts.MaxSkipDetails),
	}
	if s.images != nil {
		opts = append(opts, ingest.WithNormalizer(&ingest.Normalizer{Images: s.images}))
	}
	if s.opts.DisableStandardize {
		opts = append(opts, ingest.WithStandardize(false))
	}
	return ingest.New(d, opts...)
}

func (s *Service) outcome(dialect string, res *ingest.Result, expected int) *Outcome {
	out := &Outcome{
		Dialect:  dialect,
		Records:  res.Records,
		Report:   res.Report,
		LowYield: res.Report.LowYield(expected, s.opts.LowYieldRatio),
		Hints:    ingest.ReportHints(res.Report),
	}
	if out.LowYield {
		out.Hints = append(out.Hints, fmt.Sprintf("only %d of the expected %d records were accepted", res.Report.Accepted, expected))
	}
	return out
}

func failureOutcome(dialect string, err error) *Outcome {
	out := &Outcome{Dialect: dialect, Hints: ingest.Remediation(err)}
	var f *ingest.Failure
	if errors.As(err, &f) {
		out.Report = f.Report
	}
	return out
}

func (s *Service) finishFailed(ctx context.Context, log *slog.Logger, run *ImportRun, report *ingest.Report, err error) {
	run.Status = StatusFailed
	run.Error = err.Error()
	run.ErrorCode = MapError(err).Code
	run.Report = report
	if report != nil {
		run.TotalRows = report.TotalRows
		run.Skipped = report.Skipped()
	}
	run.DurationMs = s.now().Sub(run.CreatedAt).Milliseconds()
	s.record(ctx, log, run)

	s.metrics.ObserveFailure(run.Dialect, ingest.KindName(err))
	s.metrics.ObserveRun(run.Dialect, metrics.StatusFailed, s.now().Sub(run.CreatedAt), nil, false)
	log.Warn("import failed", "code", run.ErrorCode, "error", err)
}

// record stores the run history, detached from ctx so a timed-out import
// still leaves a trace.
func (s *Service) record(ctx context.Context, log *slog.Logger, run *ImportRun) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.store.RecordImport(rctx, *run); err != nil {
		log.Error("record import run", "error", err)
	}
}
