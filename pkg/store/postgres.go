package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	filename   TEXT NOT NULL,
	ocr_text   TEXT NOT NULL DEFAULT '',
	date       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scans_date_idx ON scans (date DESC);
CREATE INDEX IF NOT EXISTS scans_type_idx ON scans (type);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// PostgresStore keeps history and settings in PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStore connects to databaseURL and creates the tables if needed
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{db: db, logger: logger.WithComponent("store")}, nil
}

func (p *PostgresStore) Save(ctx context.Context, rec *types.ScanRecord) error {
	prepare(rec, time.Now())
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO scans (id, type, page_count, filename, ocr_text, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			page_count = EXCLUDED.page_count,
			filename = EXCLUDED.filename,
			ocr_text = EXCLUDED.ocr_text,
			date = EXCLUDED.date`,
		rec.ID, string(rec.Type), rec.PageCount, rec.Filename, rec.OCRText, rec.Date)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	p.logger.Debug().Str("id", rec.ID).Str("type", string(rec.Type)).Msg("Scan saved")
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (types.ScanRecord, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, type, page_count, filename, ocr_text, date FROM scans WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ScanRecord{}, ErrNotFound
	}
	if err != nil {
		return types.ScanRecord{}, fmt.Errorf("failed to get scan: %w", err)
	}
	return rec, nil
}

func (p *PostgresStore) List(ctx context.Context, opts ListOptions) ([]types.ScanRecord, error) {
	query := `SELECT id, type, page_count, filename, ocr_text, date FROM scans
		WHERE ($1 = '' OR type = $1) ORDER BY date DESC, id DESC`
	args := []any{string(opts.Type)}
	if opts.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, opts.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var out []types.ScanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM scans WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteOlderThan(ctx context.Context, hours int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	res, err := p.db.ExecContext(ctx, `DELETE FROM scans WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scans: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		p.logger.Debug().Int64("deleted", n).Int("hours", hours).Msg("Old scans pruned")
	}
	return int(n), nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM scans`); err != nil {
		return fmt.Errorf("failed to clear scans: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetSetting(ctx context.Context, key, def string) (string, error) {
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to get setting: %w", err)
	}
	return v, nil
}

func (p *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}

func (p *PostgresStore) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteSetting(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

func (p *PostgresStore) Size(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(octet_length(row_to_json(s)::text)) FROM scans s), 0) +
			COALESCE((SELECT SUM(octet_length(row_to_json(t)::text)) FROM settings t), 0)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to compute size: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) ClearAll(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `TRUNCATE scans, settings`); err != nil {
		return fmt.Errorf("failed to clear data: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (types.ScanRecord, error) {
	var (
		rec types.ScanRecord
		typ string
	)
	if err := r.Scan(&rec.ID, &typ, &rec.PageCount, &rec.Filename, &rec.OCRText, &rec.Date); err != nil {
		return types.ScanRecord{}, err
	}
	rec.Type = types.ScanType(typ)
	return rec, nil
}
