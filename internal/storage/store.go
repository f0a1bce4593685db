package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
)

// DriverName is the database/sql driver registered by this package. It is
// go-sqlite3 with a fold(text) SQL function for Unicode case-insensitive
// matching.
const DriverName = "sqlite3_synapse"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", Fold, true)
		},
	})
}

// Fold returns the case-folded form of s used for substring matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Store defines the interface for item persistence.
type Store interface {
	Insert(ctx context.Context, item *Item) error
	ListAll(ctx context.Context) ([]Item, error)
	Find(ctx context.Context, substr string) ([]Item, error)
	FindByURL(ctx context.Context, url string) (*Item, error)
	GetItem(ctx context.Context, id int64) (*Item, error)
	RecordCapture(ctx context.Context, rec *CaptureRecord) error
	RecentCaptures(ctx context.Context, limit int) ([]CaptureRecord, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool

	// Now is the clock used to stamp inserts. Defaults to time.Now.
	Now func() time.Time

	// writeMu serializes inserts inside this process; _txlock=immediate
	// serializes them across processes sharing the file.
	writeMu sync.Mutex

	getItem   *sql.Stmt
	findByURL *sql.Stmt
}

const itemColumns = "id, title, content, url, item_type, created_at"

// OpenSQLite opens the database file at path, applies migrations and
// returns a store that closes the database on Close.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open(DriverName, path+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := NewMigrationRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and
// migrated database. The database must be opened with DriverName.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, Now: time.Now}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getItem, err = s.db.Prepare(`SELECT ` + itemColumns + ` FROM items WHERE id = ?`)
	if err != nil {
		return err
	}

	s.findByURL, err = s.db.Prepare(`
		SELECT ` + itemColumns + ` FROM items
		WHERE url = ? ORDER BY id ASC LIMIT 1
	`)
	if err != nil {
		return err
	}

	return nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert assigns the item's ID and CreatedAt and persists it. CreatedAt is
// strictly greater than every previously stored timestamp: a clock reading
// that collides with or precedes the newest row is moved one nanosecond
// past it.
func (s *SQLiteStore) Insert(ctx context.Context, item *Item) error {
	if item == nil {
		return storeErr("insert", errors.New("nil item"))
	}
	if !item.Type.Valid() {
		return storeErr("insert", fmt.Errorf("invalid item type %q", item.Type))
	}
	item.sanitize()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("insert", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var newest int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(created_at), 0) FROM items").Scan(&newest); err != nil {
		return storeErr("insert", fmt.Errorf("read newest timestamp: %w", err))
	}
	ts := nextTimestamp(s.Now(), newest)

	res, err := tx.ExecContext(ctx,
		"INSERT INTO items (title, content, url, item_type, created_at) VALUES (?, ?, ?, ?, ?)",
		item.Title, item.Content, item.URL, string(item.Type), ts,
	)
	if err != nil {
		return storeErr("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("insert", fmt.Errorf("last insert id: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return storeErr("insert", fmt.Errorf("commit: %w", err))
	}

	item.ID = id
	item.CreatedAt = fromNanos(ts)
	return nil
}

// nextTimestamp returns now in Unix nanoseconds, or newest+1 if now is not
// after newest.
func nextTimestamp(now time.Time, newest int64) int64 {
	ts := now.UnixNano()
	if ts <= newest {
		ts = newest + 1
	}
	return ts
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// ListAll returns every item, newest first. Items with identical timestamps
// are ordered by ascending id.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Item, error) {
	return s.scanItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at DESC, id ASC`)
}

// Find returns items whose title or content contains substr, ignoring case,
// newest first.
func (s *SQLiteStore) Find(ctx context.Context, substr string) ([]Item, error) {
	needle := Fold(substr)
	return s.scanItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE instr(fold(title), ?) > 0 OR instr(fold(content), ?) > 0
		ORDER BY created_at DESC, id ASC
	`, needle, needle)
}

// FindByURL returns the oldest item captured from url.
func (s *SQLiteStore) FindByURL(ctx context.Context, url string) (*Item, error) {
	item, err := scanItem(s.findByURL.QueryRowContext(ctx, url))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item with url %s: %w", url, ErrNotFound)
		}
		return nil, storeErr("find by url", err)
	}
	return item, nil
}

// GetItem retrieves a single item by ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	item, err := scanItem(s.getItem.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
		}
		return nil, storeErr("get item", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		it       Item
		itemType string
		created  int64
	)
	if err := row.Scan(&it.ID, &it.Title, &it.Content, &it.URL, &itemType, &created); err != nil {
		return nil, err
	}
	it.Type = ItemType(itemType)
	it.CreatedAt = fromNanos(created)
	return &it, nil
}

// scanItems executes a query and scans results into an Item slice. The
// result is never nil.
func (s *SQLiteStore) scanItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStore) RecordCapture(ctx context.Context, rec *CaptureRecord) error {
	var itemID sql.NullInt64
	if rec.ItemID > 0 {
		itemID = sql.NullInt64{Int64: rec.ItemID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO capture_log (task_id, source, target, state, error, item_id, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Source, rec.Target, rec.State, rec.Error, itemID,
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(),
	)
	return storeErr("record capture", err)
}

// RecentCaptures returns up to limit capture log entries, most recently
// finished first.
func (s *SQLiteStore) RecentCaptures(ctx context.Context, limit int) ([]CaptureRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, source, target, state, error, item_id, started_at, finished_at
		FROM capture_log ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr("recent captures", err)
	}
	defer rows.Close()

	recs := []CaptureRecord{}
	for rows.Next() {
		var (
			rec               CaptureRecord
			itemID            sql.NullInt64
			started, finished int64
		)
		if err := rows.Scan(&rec.TaskID, &rec.Source, &rec.Target, &rec.State, &rec.Error,
			&itemID, &started, &finished); err != nil {
			return nil, storeErr("scan capture", err)
		}
		rec.ItemID = itemID.Int64
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
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByType: make(map[ItemType]int64)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&stats.TotalItems); err != nil {
		return nil, storeErr("count items", err)
	}

	if stats.TotalItems > 0 {
		var oldest, newest int64
		if err := s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM items").Scan(&oldest, &newest); err != nil {
			return nil, storeErr("item time range", err)
		}
		stats.OldestItem = fromNanos(oldest)
		stats.NewestItem = fromNanos(newest)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT item_type, COUNT(*) FROM items GROUP BY item_type")
	if err != nil {
		return nil, storeErr("count by type", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t string
			n int64
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, storeErr("count by type", err)
		}
		stats.ByType[ItemType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("count by type", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0)
		FROM capture_log`, CaptureFailed,
	).Scan(&stats.CapturesLogged, &stats.CapturesFailed)
	if err != nil {
		return nil, storeErr("count captures", err)
	}

	return stats, nil
}

// Close releases prepared statements, and the database when the store
// opened it itself.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getItem, s.findByURL} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
