package index

import (
	"database/sql"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/starford/lifeline/internal/lifeline"
)

const defaultLimit = 20

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Hit is one search result.
type Hit struct {
	ID      string `json:"id"`
	GroupID int    `json:"group"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// TagCount is a tag with the number of items carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Replace swaps every indexed item of a session for intervals, in one
// transaction.
func (db *DB) Replace(session string, intervals []lifeline.Interval) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := deleteSession(tx, session); err != nil {
		return err
	}

	itemStmt, err := tx.Prepare(`
		INSERT INTO items (session, id, group_id, title, description, impact, tags, start_ms, end_ms, open_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare item insert: %w", err)
	}
	defer itemStmt.Close()

	tagStmt, err := tx.Prepare(`INSERT OR IGNORE INTO item_tags (session, id, tag) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare tag insert: %w", err)
	}
	defer tagStmt.Close()

	for _, iv := range intervals {
		tags := iv.Tags
		if tags == nil {
			tags = []string{}
		}
		// A []string always marshals.
		tagsJSON, _ := sonic.Marshal(tags)
		open := 0
		if iv.HasOpenEnd {
			open = 1
		}
		if _, err := itemStmt.Exec(session, iv.ID, iv.GroupID, iv.Title, iv.Description, iv.Impact,
			string(tagsJSON), iv.Start.UnixMilli(), iv.End.UnixMilli(), open); err != nil {
			return fmt.Errorf("index: insert item %s: %w", iv.ID, err)
		}
		for _, tag := range iv.Tags {
			if _, err := tagStmt.Exec(session, iv.ID, tag); err != nil {
				return fmt.Errorf("index: insert tag: %w", err)
			}
		}
		if err := ftsInsert(tx, session, iv); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Drop removes every item of a session.
func (db *DB) Drop(session string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteSession(tx, session); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteSession(tx execer, session string) error {
	if _, err := tx.Exec(`DELETE FROM item_tags WHERE session = ?`, session); err != nil {
		return fmt.Errorf("index: delete tags: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM items WHERE session = ?`, session); err != nil {
		return fmt.Errorf("index: delete items: %w", err)
	}
	ftsDelete(tx, session)
	return nil
}

// Count returns the number of indexed items of a session.
func (db *DB) Count(session string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM items WHERE session = ?`, session).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// ByTag returns the items of a session carrying tag, in start order.
func (db *DB) ByTag(session, tag string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := db.conn.Query(`
		SELECT i.id, i.group_id, i.title
		FROM item_tags t
		JOIN items i ON i.session = t.session AND i.id = t.id
		WHERE t.session = ? AND t.tag = ?
		ORDER BY i.start_ms, i.id
		LIMIT ?
	`, session, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("index: by tag: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.GroupID, &h.Title); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Tags returns every tag of a session with its item count, most used first.
func (db *DB) Tags(session string) ([]TagCount, error) {
	rows, err := db.conn.Query(`
		SELECT tag, count(*) AS n
		FROM item_tags
		WHERE session = ?
		GROUP BY tag
		ORDER BY n DESC, tag
	`, session)
	if err != nil {
		return nil, fmt.Errorf("index: tags: %w", err)
	}
	defer rows.Close()

	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
