//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/lifeline/internal/lifeline"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the items table.
	return nil
}

func ftsInsert(_ execer, _ string, _ lifeline.Interval) error {
	// Text is already stored in the items table; nothing extra to do.
	return nil
}

func ftsDelete(_ execer, _ string) {}

// Search performs a case-insensitive LIKE search over title, description and
// tags (fallback when FTS5 is not compiled in).
func (db *DB) Search(session, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT id, group_id, title, substr(description, 1, 200)
		FROM items
		WHERE session = ?
		  AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')
		ORDER BY start_ms, id
		LIMIT ?
	`, session, like, like, like, limit)
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

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
