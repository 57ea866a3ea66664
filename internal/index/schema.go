// Package index provides a SQLite-backed search index over the intervals of
// every open view session, with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Memory is the DSN of a private in-memory index.
const Memory = ":memory:"

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	session     TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	group_id    INTEGER NOT NULL,
	title       TEXT    NOT NULL DEFAULT '',
	description TEXT    NOT NULL DEFAULT '',
	impact      TEXT    NOT NULL DEFAULT '',
	tags        TEXT    NOT NULL DEFAULT '[]',
	start_ms    INTEGER NOT NULL,
	end_ms      INTEGER NOT NULL,
	open_end    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session, id)
);

CREATE TABLE IF NOT EXISTS item_tags (
	session TEXT NOT NULL,
	id      TEXT NOT NULL,
	tag     TEXT NOT NULL,
	UNIQUE(session, id, tag)
);

CREATE INDEX IF NOT EXISTS idx_items_start ON items(session, start_ms);
CREATE INDEX IF NOT EXISTS idx_item_tags_tag ON item_tags(session, tag);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema. The
// special DSN Memory keeps the index in process memory.
func Open(dsn string) (*DB, error) {
	source := dsn + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	if dsn == Memory || dsn == "" {
		source = "file::memory:?_busy_timeout=5000&_foreign_keys=on"
	}
	conn, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	// Every connection to :memory: is a separate database; one connection
	// keeps a single one. File databases serialize writes anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
