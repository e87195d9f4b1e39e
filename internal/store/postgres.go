package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/ingest"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS import_runs (
		id TEXT PRIMARY KEY,
		dialect TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		total_rows INTEGER NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		expected INTEGER NOT NULL DEFAULT 0,
		low_yield BOOLEAN NOT NULL DEFAULT FALSE,
		report JSONB,
		error TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		remote_addr TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_import_runs_created_at ON import_runs(created_at)`,
	`CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		import_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		personality TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		tags JSONB NOT NULL DEFAULT '[]',
		type TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		creator TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		is_official BOOLEAN NOT NULL DEFAULT FALSE,
		category TEXT NOT NULL,
		is_favorited BOOLEAN NOT NULL DEFAULT FALSE,
		review_status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		seq BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_import_id ON characters(import_id)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_type ON characters(type)`,
}

var characterColumns = []string{
	"id", "import_id", "name", "description", "personality", "prompt", "tags", "type",
	"source", "creator", "image_url", "is_official", "category", "is_favorited",
	"review_status", "created_at",
}

// Postgres implements core.Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ core.Store = (*Postgres)(nil)

// OpenPostgres connects a pool to url, verifies it and applies the schema.
func OpenPostgres(ctx context.Context, url string, cfg PoolConfig, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{pool: pool, logger: logger}
	if err := p.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to database", "name", databaseName(url))
	return p, nil
}

func databaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func (p *Postgres) init(ctx context.Context) error {
	for _, ddl := range postgresSchema {
		if _, err := p.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: apply schema: %w", err)
		}
	}
	return nil
}

// SaveCharacters bulk-loads records with COPY inside a transaction.
func (p *Postgres) SaveCharacters(ctx context.Context, importID string, records []ingest.Record) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	rows := make([][]any, len(records))
	for i, r := range records {
		tags, err := encodeTags(r.Tags)
		if err != nil {
			return err
		}
		rows[i] = []any{
			r.ID, importID, r.Name, r.Description, r.Personality, r.Prompt, tags, string(r.Type),
			r.Source, r.Creator, r.ImageURL, r.IsOfficial, r.Category, r.IsFavorited,
			r.ReviewStatus, now,
		}
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"characters"}, characterColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy characters: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Debug("postgres: characters saved",
		"import_id", importID,
		"count", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// RecordImport inserts or updates a run.
func (p *Postgres) RecordImport(ctx context.Context, run core.ImportRun) error {
	report, err := encodeReport(run.Report)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `INSERT INTO import_runs (
		id, dialect, file_name, status, total_rows, accepted, skipped, expected,
		low_yield, report, error, error_code, remote_addr, user_agent,
		duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		total_rows = EXCLUDED.total_rows,
		accepted = EXCLUDED.accepted,
		skipped = EXCLUDED.skipped,
		low_yield = EXCLUDED.low_yield,
		report = EXCLUDED.report,
		error = EXCLUDED.error,
		error_code = EXCLUDED.error_code,
		duration_ms = EXCLUDED.duration_ms`,
		run.ID, run.Dialect, run.FileName, run.Status, run.TotalRows, run.Accepted, run.Skipped, run.Expected,
		run.LowYield, report, run.Error, run.ErrorCode, run.RemoteAddr, run.UserAgent,
		run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

const postgresRunColumns = `id, dialect, file_name, status, total_rows, accepted, skipped, expected,
	low_yield, report, error, error_code, remote_addr, user_agent, duration_ms, created_at`

// GetImport returns a run by id.
func (p *Postgres) GetImport(ctx context.Context, id string) (core.ImportRun, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM import_runs WHERE id = $1`, id)
	run, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportRun{}, fmt.Errorf("import %s: %w", id, core.ErrNotFound)
	}
	return run, err
}

// ListImports returns runs newest first.
func (p *Postgres) ListImports(ctx context.Context, limit, offset int) ([]core.ImportRun, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+postgresRunColumns+` FROM import_runs ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var runs []core.ImportRun
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanPostgresRun(row scanner) (core.ImportRun, error) {
	var (
		run    core.ImportRun
		report []byte
	)
	if err := row.Scan(
		&run.ID, &run.Dialect, &run.FileName, &run.Status, &run.TotalRows, &run.Accepted, &run.Skipped, &run.Expected,
		&run.LowYield, &report, &run.Error, &run.ErrorCode, &run.RemoteAddr, &run.UserAgent, &run.DurationMs, &run.CreatedAt,
	); err != nil {
		return core.ImportRun{}, err
	}
	r, err := decodeReport(report)
	if err != nil {
		return core.ImportRun{}, err
	}
	run.Report = r
	return run, nil
}

// ListCharacters returns characters matching f in insertion order.
func (p *Postgres) ListCharacters(ctx context.Context, f core.CharacterFilter) ([]core.Character, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ImportID != "" {
		where = append(where, "import_id = "+arg(f.ImportID))
	}
	if f.Type != "" {
		where = append(where, "type = "+arg(string(f.Type)))
	}
	if f.Search != "" {
		where = append(where, "strpos(name, "+arg(f.Search)+") > 0")
	}

	query := `SELECT id, import_id, name, description, personality, prompt, tags, type,
		source, creator, image_url, is_official, category, is_favorited, review_status, created_at
		FROM characters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, seq LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var out []core.Character
	for rows.Next() {
		var (
			c    core.Character
			tags []byte
			typ  string
		)
		if err := rows.Scan(
			&c.ID, &c.ImportID, &c.Name, &c.Description, &c.Personality, &c.Prompt, &tags, &typ,
			&c.Source, &c.Creator, &c.ImageURL, &c.IsOfficial, &c.Category, &c.IsFavorited, &c.ReviewStatus, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		if c.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		c.Type = ingest.CharacterType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

// PurgeImports deletes runs created before the cutoff.
func (p *Postgres) PurgeImports(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM import_runs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge imports: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the pool.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
