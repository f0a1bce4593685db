package storage

// v001 creates the items table. created_at holds Unix nanoseconds so
// ordering survives sub-second bursts of captures.
var v001Items = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		title      TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '',
		url        TEXT NOT NULL DEFAULT '',
		item_type  TEXT NOT NULL CHECK (item_type IN ('ARTICLE', 'VIDEO', 'PRODUCT', 'NOTE', 'IMAGE')),
		created_at INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at DESC, id ASC)`,
	`CREATE INDEX IF NOT EXISTS idx_items_url        ON items(url)`,
	`CREATE INDEX IF NOT EXISTS idx_items_type       ON items(item_type)`,
}
