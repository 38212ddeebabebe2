package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowvault/linkcycle/internal/links"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// db is the pool surface the stores use. pgxmock satisfies it in tests.
type db interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the shared Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

const linkColumns = `id, url, domain, title, description, content_type, status, priority,
scrape_interval_seconds, last_scraped, next_scrape, success_count, error_count,
last_error, tags, discovered_from, metadata, created_at, updated_at`

// LinkStore persists link records in Postgres.
type LinkStore struct {
	pool db
}

// NewLinkStore constructs a store over an existing pool.
func NewLinkStore(pool db) (*LinkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LinkStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *LinkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts or merges a record keyed by URL. On conflict the title
// is refreshed when non-empty, the content type when the candidate is
// not unknown, priority is raised but never lowered, and metadata keys
// are merged.
func (s *LinkStore) Upsert(ctx context.Context, rec links.LinkRecord) (links.LinkRecord, bool, error) {
	tags, err := json.Marshal(emptySlice(rec.Tags))
	if err != nil {
		return links.LinkRecord{}, false, fmt.Errorf("marshal tags: %w", err)
	}
	meta, err := json.Marshal(emptyMap(rec.Metadata))
	if err != nil {
		return links.LinkRecord{}, false, fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
INSERT INTO links (` + linkColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (url) DO UPDATE SET
	title = CASE WHEN EXCLUDED.title <> '' THEN EXCLUDED.title ELSE links.title END,
	description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE links.description END,
	content_type = CASE WHEN EXCLUDED.content_type <> 'unknown' THEN EXCLUDED.content_type ELSE links.content_type END,
	priority = GREATEST(links.priority, EXCLUDED.priority),
	metadata = links.metadata || EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
RETURNING ` + linkColumns + `, (xmax = 0) AS created`

	row := s.pool.QueryRow(ctx, query,
		rec.ID,
		rec.URL,
		rec.Domain,
		rec.Title,
		rec.Description,
		string(rec.ContentType),
		string(rec.Status),
		rec.Priority,
		int64(rec.ScrapeInterval/time.Second),
		rec.LastScraped,
		rec.NextScrape,
		rec.SuccessCount,
		rec.ErrorCount,
		rec.LastError,
		tags,
		rec.DiscoveredFrom,
		meta,
		rec.CreatedAt,
		rec.UpdatedAt,
	)

	var created bool
	stored, err := scanLink(row, &created)
	if err != nil {
		return links.LinkRecord{}, false, fmt.Errorf("upsert link: %w", err)
	}
	return stored, created, nil
}

// Get fetches a record by ID.
func (s *LinkStore) Get(ctx context.Context, id string) (links.LinkRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE id = $1`, id)
	rec, err := scanLink(row, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return links.LinkRecord{}, links.ErrNotFound
	}
	if err != nil {
		return links.LinkRecord{}, fmt.Errorf("get link: %w", err)
	}
	return rec, nil
}

// GetByURL fetches a record by its natural key.
func (s *LinkStore) GetByURL(ctx context.Context, url string) (links.LinkRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE url = $1`, url)
	rec, err := scanLink(row, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return links.LinkRecord{}, links.ErrNotFound
	}
	if err != nil {
		return links.LinkRecord{}, fmt.Errorf("get link by url: %w", err)
	}
	return rec, nil
}

// SelectDue returns up to limit active records due at or before now,
// highest priority first, earlier due times breaking ties. Records that
// have never been scheduled sort first.
func (s *LinkStore) SelectDue(ctx context.Context, now time.Time, limit int) ([]links.LinkRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+linkColumns+`
FROM links
WHERE status = 'active' AND (next_scrape IS NULL OR next_scrape <= $1)
ORDER BY priority DESC, next_scrape ASC NULLS FIRST
LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due links: %w", err)
	}
	defer rows.Close()

	var due []links.LinkRecord
	for rows.Next() {
		rec, err := scanLink(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("scan due link: %w", err)
		}
		due = append(due, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due links: %w", err)
	}
	return due, nil
}

// MarkScheduled reserves the link for the current interval.
func (s *LinkStore) MarkScheduled(ctx context.Context, id string, lastScraped, nextScrape time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE links SET last_scraped = $2, next_scrape = $3, updated_at = $2
WHERE id = $1`, id, lastScraped, nextScrape)
	if err != nil {
		return fmt.Errorf("mark scheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return links.ErrNotFound
	}
	return nil
}

// RecordOutcome applies a scrape outcome in one statement so concurrent
// workers cannot interleave partial updates to the same record.
func (s *LinkStore) RecordOutcome(ctx context.Context, id string, success bool, errText string, at time.Time) (links.LinkRecord, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE links SET
	success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
	error_count = error_count + CASE WHEN $2 THEN 0 ELSE 1 END,
	last_error = CASE WHEN $2 THEN '' ELSE $3 END,
	status = CASE
		WHEN $2 THEN 'active'
		WHEN error_count + 1 >= $4 THEN 'error'
		ELSE status
	END,
	updated_at = $5
WHERE id = $1
RETURNING `+linkColumns, id, success, errText, links.ErrorThreshold, at)

	rec, err := scanLink(row, nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return links.LinkRecord{}, links.ErrNotFound
	}
	if err != nil {
		return links.LinkRecord{}, fmt.Errorf("record outcome: %w", err)
	}
	return rec, nil
}

func scanLink(row pgx.Row, created *bool) (links.LinkRecord, error) {
	var (
		rec             links.LinkRecord
		contentType     string
		status          string
		intervalSeconds int64
		tags            []byte
		meta            []byte
	)
	dest := []any{
		&rec.ID,
		&rec.URL,
		&rec.Domain,
		&rec.Title,
		&rec.Description,
		&contentType,
		&status,
		&rec.Priority,
		&intervalSeconds,
		&rec.LastScraped,
		&rec.NextScrape,
		&rec.SuccessCount,
		&rec.ErrorCount,
		&rec.LastError,
		&tags,
		&rec.DiscoveredFrom,
		&meta,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	}
	if created != nil {
		dest = append(dest, created)
	}
	if err := row.Scan(dest...); err != nil {
		return links.LinkRecord{}, err
	}
	rec.ContentType = links.ContentType(contentType)
	rec.Status = links.LinkStatus(status)
	rec.ScrapeInterval = time.Duration(intervalSeconds) * time.Second
	if err := json.Unmarshal(tags, &rec.Tags); err != nil {
		return links.LinkRecord{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return links.LinkRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return rec, nil
}

func emptySlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func emptyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}
