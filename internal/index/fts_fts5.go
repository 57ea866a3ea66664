//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/lifeline/internal/lifeline"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			session UNINDEXED,
			id UNINDEXED,
			title,
			description,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx execer, session string, iv lifeline.Interval) error {
	_, err := tx.Exec(`INSERT INTO items_fts (session, id, title, description, tags) VALUES (?, ?, ?, ?, ?)`,
		session, iv.ID, iv.Title, iv.Description, strings.Join(iv.Tags, " "))
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx execer, session string) {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE session = ?`, session)
}

// Search performs an FTS5 full-text search and returns matching items with
// snippets. The query is matched as a phrase.
func (db *DB) Search(session, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	rows, err := db.conn.Query(`
		SELECT f.id,
		       i.group_id,
		       f.title,
		       snippet(items_fts, 3, '<b>', '</b>', '...', 32)
		FROM items_fts f
		JOIN items i ON i.session = f.session AND i.id = f.id
		WHERE items_fts MATCH ? AND f.session = ?
		ORDER BY rank
		LIMIT ?
	`, phrase, session, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.GroupID, &h.Title, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
