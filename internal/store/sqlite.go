package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/ingest"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS import_runs (
		id TEXT PRIMARY KEY,
		dialect TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		total_rows INTEGER NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		expected INTEGER NOT NULL DEFAULT 0,
		low_yield INTEGER NOT NULL DEFAULT 0,
		report TEXT,
		error TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		remote_addr TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_import_runs_created_at ON import_runs(created_at)`,
	`CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		import_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		personality TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		type TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		creator TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		is_official INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL,
		is_favorited INTEGER NOT NULL DEFAULT 0,
		review_status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_import_id ON characters(import_id)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_type ON characters(type)`,
}

// SQLite implements core.Store on a local SQLite file.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ core.Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at dsn and applies the
// schema. All access goes through a single connection, so concurrent
// writers queue instead of failing with SQLITE_BUSY.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLite, error) {
	if dsn == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("sqlite store opened", "path", dsn)
	return s, nil
}

func (s *SQLite) init(ctx context.Context) error {
	for _, ddl := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}
	return nil
}

// SaveCharacters inserts records in one transaction.
func (s *SQLite) SaveCharacters(ctx context.Context, importID string, records []ingest.Record) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO characters (
		id, import_id, name, description, personality, prompt, tags, type,
		source, creator, image_url, is_official, category, is_favorited,
		review_status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, r := range records {
		tags, err := encodeTags(r.Tags)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, importID, r.Name, r.Description, r.Personality, r.Prompt, string(tags), string(r.Type),
			r.Source, r.Creator, r.ImageURL, r.IsOfficial, r.Category, r.IsFavorited,
			r.ReviewStatus, now,
		); err != nil {
			return fmt.Errorf("insert character %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("sqlite: characters saved",
		"import_id", importID,
		"count", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// RecordImport inserts or replaces a run.
func (s *SQLite) RecordImport(ctx context.Context, run core.ImportRun) error {
	report, err := encodeReport(run.Report)
	if err != nil {
		return err
	}
	var reportText sql.NullString
	if report != nil {
		reportText = sql.NullString{String: string(report), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO import_runs (
		id, dialect, file_name, status, total_rows, accepted, skipped, expected,
		low_yield, report, error, error_code, remote_addr, user_agent,
		duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dialect, run.FileName, run.Status, run.TotalRows, run.Accepted, run.Skipped, run.Expected,
		run.LowYield, reportText, run.Error, run.ErrorCode, run.RemoteAddr, run.UserAgent,
		run.DurationMs, run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

const sqliteRunColumns = `id, dialect, file_name, status, total_rows, accepted, skipped, expected,
	low_yield, report, error, error_code, remote_addr, user_agent, duration_ms, created_at`

// GetImport returns a run by id.
func (s *SQLite) GetImport(ctx context.Context, id string) (core.ImportRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM import_runs WHERE id = ?`, id)
	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportRun{}, fmt.Errorf("import %s: %w", id, core.ErrNotFound)
	}
	return run, err
}

// ListImports returns runs newest first.
func (s *SQLite) ListImports(ctx context.Context, limit, offset int) ([]core.ImportRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM import_runs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var runs []core.ImportRun
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanSQLiteRun(row scanner) (core.ImportRun, error) {
	var (
		run       core.ImportRun
		report    sql.NullString
		createdAt int64
	)
	if err := row.Scan(
		&run.ID, &run.Dialect, &run.FileName, &run.Status, &run.TotalRows, &run.Accepted, &run.Skipped, &run.Expected,
		&run.LowYield, &report, &run.Error, &run.ErrorCode, &run.RemoteAddr, &run.UserAgent, &run.DurationMs, &createdAt,
	); err != nil {
		return core.ImportRun{}, err
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	if report.Valid {
		r, err := decodeReport([]byte(report.String))
		if err != nil {
			return core.ImportRun{}, err
		}
		run.Report = r
	}
	return run, nil
}

// ListCharacters returns characters matching f in insertion order.
func (s *SQLite) ListCharacters(ctx context.Context, f core.CharacterFilter) ([]core.Character, error) {
	var (
		where []string
		args  []any
	)
	if f.ImportID != "" {
		where = append(where, "import_id = ?")
		args = append(args, f.ImportID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Search != "" {
		where = append(where, "instr(name, ?) > 0")
		args = append(args, f.Search)
	}

	query := `SELECT id, import_id, name, description, personality, prompt, tags, type,
		source, creator, image_url, is_official, category, is_favorited, review_status, created_at
		FROM characters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, rowid LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var out []core.Character
	for rows.Next() {
		var (
			c         core.Character
			tags      string
			typ       string
			createdAt int64
		)
		if err := rows.Scan(
			&c.ID, &c.ImportID, &c.Name, &c.Description, &c.Personality, &c.Prompt, &tags, &typ,
			&c.Source, &c.Creator, &c.ImageURL, &c.IsOfficial, &c.Category, &c.IsFavorited, &c.ReviewStatus, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		if c.Tags, err = decodeTags([]byte(tags)); err != nil {
			return nil, err
		}
		c.Type = ingest.CharacterType(typ)
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// PurgeImports deletes runs created before the cutoff.
func (s *SQLite) PurgeImports(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM import_runs WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge imports: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
