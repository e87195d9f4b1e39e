package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/charimport/internal/ingest"
)

// Import run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var (
	// ErrNotFound is returned by a Store when a lookup matches nothing.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownDialect is returned when a request names a dialect that is
	// not registered.
	ErrUnknownDialect = errors.New("unknown dialect")
)

// DialectAuto asks the service to detect the dialect from the payload.
const DialectAuto = "auto"

// Page size bounds for list operations.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ImportRun is the persisted record of one import attempt.
type ImportRun struct {
	ID         string         `json:"id"`
	Dialect    string         `json:"dialect"`
	FileName   string         `json:"fileName,omitempty"`
	Status     string         `json:"status"`
	TotalRows  int            `json:"totalRows"`
	Accepted   int            `json:"accepted"`
	Skipped    int            `json:"skipped"`
	Expected   int            `json:"expected,omitempty"`
	LowYield   bool           `json:"lowYield"`
	Report     *ingest.Report `json:"report,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"errorCode,omitempty"`
	RemoteAddr string         `json:"remoteAddr,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	DurationMs int64          `json:"durationMs"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Character is a stored record together with the run that imported it.
type Character struct {
	ingest.Record
	ImportID  string    `json:"importId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CharacterFilter narrows ListCharacters. Zero fields match everything.
type CharacterFilter struct {
	ImportID string
	Type     ingest.CharacterType
	// Search matches a substring of the name.
	Search string
	Limit  int
	Offset int
}

// Store persists imported characters and the history of import runs.
type Store interface {
	// SaveCharacters inserts records atomically: either all rows land or none.
	SaveCharacters(ctx context.Context, importID string, records []ingest.Record) error
	RecordImport(ctx context.Context, run ImportRun) error
	GetImport(ctx context.Context, id string) (ImportRun, error)
	ListImports(ctx context.Context, limit, offset int) ([]ImportRun, error)
	ListCharacters(ctx context.Context, f CharacterFilter) ([]Character, error)
	// PurgeImports deletes run history created before the cutoff. Imported
	// characters are kept.
	PurgeImports(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// ClampPage applies the default and maximum page size and a non-negative offset.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
