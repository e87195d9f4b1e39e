// Package store persists imported characters and import history.
//
// Two backends implement core.Store: PostgreSQL through a pgx connection
// pool, and SQLite through the pure-Go modernc driver for the CLI and local
// development. Open picks one from the database URL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/ingest"
)

// PoolConfig sizes the PostgreSQL connection pool. Zero fields keep the
// pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type options struct {
	logger *slog.Logger
	pool   PoolConfig
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPool sets the PostgreSQL pool size. SQLite ignores it.
func WithPool(p PoolConfig) Option {
	return func(o *options) { o.pool = p }
}

// Open connects to the database at url, applies the schema and returns the
// matching store. postgres:// and postgresql:// select PostgreSQL;
// sqlite://path and file: URLs select SQLite.
func Open(ctx context.Context, url string, opts ...Option) (core.Store, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return OpenPostgres(ctx, url, o.pool, o.logger)
	case strings.HasPrefix(url, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite://"), o.logger)
	case strings.HasPrefix(url, "file:"):
		return OpenSQLite(ctx, url, o.logger)
	}
	return nil, fmt.Errorf("unsupported database url %q", redact(url))
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i+3] + "..."
	}
	return "..."
}

// scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

func decodeTags(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func encodeReport(r *ingest.Report) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func decodeReport(data []byte) (*ingest.Report, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var r ingest.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
