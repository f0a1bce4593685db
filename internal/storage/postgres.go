package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// insertLockKey is the advisory lock taken by every insert transaction.
const insertLockKey int64 = 0x53594e41 // "SYNA"

// PostgresStore implements Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool

	// Now is the clock used to stamp inserts. Defaults to time.Now.
	Now func() time.Time
}

// OpenPostgres connects to connStr, verifies the connection and ensures the
// schema exists.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, Now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id         BIGSERIAL PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL DEFAULT '',
			url        TEXT NOT NULL DEFAULT '',
			item_type  TEXT NOT NULL CHECK (item_type IN ('ARTICLE', 'VIDEO', 'PRODUCT', 'NOTE', 'IMAGE')),
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at DESC, id ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_items_url ON items(url)`,
		`CREATE TABLE IF NOT EXISTS capture_log (
			task_id     TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			target      TEXT NOT NULL DEFAULT '',
			state       TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			item_id     BIGINT REFERENCES items(id),
			started_at  BIGINT NOT NULL,
			finished_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_capture_log_finished ON capture_log(finished_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Insert assigns ID and CreatedAt under a transaction-scoped advisory lock.
func (s *PostgresStore) Insert(ctx context.Context, item *Item) error {
	if item == nil {
		return storeErr("insert", errors.New("nil item"))
	}
	if !item.Type.Valid() {
		return storeErr("insert", fmt.Errorf("invalid item type %q", item.Type))
	}
	item.sanitize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("insert", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", insertLockKey); err != nil {
		return storeErr("insert", fmt.Errorf("advisory lock: %w", err))
	}

	var newest int64
	if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(created_at), 0) FROM items").Scan(&newest); err != nil {
		return storeErr("insert", fmt.Errorf("read newest timestamp: %w", err))
	}
	ts := nextTimestamp(s.Now(), newest)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO items (title, content, url, item_type, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.Title, item.Content, item.URL, string(item.Type), ts,
	).Scan(&id)
	if err != nil {
		return storeErr("insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("insert", fmt.Errorf("commit: %w", err))
	}

	item.ID = id
	item.CreatedAt = fromNanos(ts)
	return nil
}

// ListAll returns every item, newest first.
func (s *PostgresStore) ListAll(ctx context.Context) ([]Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at DESC, id ASC`)
}

// Find returns items whose title or content contains substr, ignoring case.
func (s *PostgresStore) Find(ctx context.Context, substr string) ([]Item, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE strpos(lower(title), lower($1)) > 0 OR strpos(lower(content), lower($1)) > 0
		ORDER BY created_at DESC, id ASC`, substr)
}

// FindByURL returns the oldest item captured from url.
func (s *PostgresStore) FindByURL(ctx context.Context, url string) (*Item, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE url = $1 ORDER BY id ASC LIMIT 1`, url)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item with url %s: %w", url, ErrNotFound)
		}
		return nil, storeErr("find by url", err)
	}
	return item, nil
}

// GetItem retrieves a single item by ID.
func (s *PostgresStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	item, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
		}
		return nil, storeErr("get item", err)
	}
	return item, nil
}

func (s *PostgresStore) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query items", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("scan item", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query items", err)
	}
	return items, nil
}

// RecordCapture appends a finished pipeline run to the capture log.
func (s *PostgresStore) RecordCapture(ctx context.Context, rec *CaptureRecord) error {
	var itemID *int64
	if rec.ItemID > 0 {
		itemID = &rec.ItemID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO capture_log (task_id, source, target, state, error, item_id, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id) DO UPDATE SET
		  state = EXCLUDED.state, error = EXCLUDED.error, item_id = EXCLUDED.item_id,
		  finished_at = EXCLUDED.finished_at`,
		rec.TaskID, rec.Source, strings.ToValidUTF8(rec.Target, "\uFFFD"), rec.State,
		strings.ToValidUTF8(rec.Error, "\uFFFD"), itemID,
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(),
	)
	return storeErr("record capture", err)
}

// RecentCaptures returns up to limit capture log entries, newest first.
func (s *PostgresStore) RecentCaptures(ctx context.Context, limit int) ([]CaptureRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT task_id, source, target, state, error, item_id, started_at, finished_at
		FROM capture_log ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, storeErr("recent captures", err)
	}
	defer rows.Close()

	recs := []CaptureRecord{}
	for rows.Next() {
		var (
			rec               CaptureRecord
			itemID            *int64
			started, finished int64
		)
		if err := rows.Scan(&rec.TaskID, &rec.Source, &rec.Target, &rec.State, &rec.Error,
			&itemID, &started, &finished); err != nil {
			return nil, storeErr("scan capture", err)
		}
		if itemID != nil {
			rec.ItemID = *itemID
		}
		rec.StartedAt = fromNanos(started)
		rec.FinishedAt = fromNanos(finished)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("recent captures", err)
	}
	return recs, nil
}

// GetStats returns aggregate statistics about the store.
func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByType: make(map[ItemType]int64)}

	var oldest, newest *int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM items").
		Scan(&stats.TotalItems, &oldest, &newest)
	if err != nil {
		return nil, storeErr("count items", err)
	}
	if oldest != nil && newest != nil {
		stats.OldestItem = fromNanos(*oldest)
		stats.NewestItem = fromNanos(*newest)
	}

	rows, err := s.pool.Query(ctx, "SELECT item_type, COUNT(*) FROM items GROUP BY item_type")
	if err != nil {
		return nil, storeErr("count by type", err)
	}
	for rows.Next() {
		var (
			t string
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return nil, storeErr("count by type", err)
		}
		stats.ByType[ItemType(t)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr("count by type", err)
	}

	err = s.pool.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE state = $1) FROM capture_log", CaptureFailed,
	).Scan(&stats.CapturesLogged, &stats.CapturesFailed)
	if err != nil {
		return nil, storeErr("count captures", err)
	}
	return stats, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
