// Package sqlite persists UI preferences in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open creates the database and its parent directory if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set state db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set state db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS group_preferences (
	project TEXT PRIMARY KEY,
	collapsed INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize group preferences schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CollapsedGroups returns the projects whose group is collapsed, sorted.
func (s *Store) CollapsedGroups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project FROM group_preferences WHERE collapsed = 1 ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("list collapsed groups: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var project string
		if err := rows.Scan(&project); err != nil {
			return nil, fmt.Errorf("scan group preference row: %w", err)
		}
		out = append(out, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group preference rows: %w", err)
	}
	return out, nil
}

// SetGroupCollapsed records the collapsed flag for project.
func (s *Store) SetGroupCollapsed(ctx context.Context, project string, collapsed bool) error {
	if project == "" {
		return fmt.Errorf("project is required")
	}
	flag := 0
	if collapsed {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_preferences (project, collapsed, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(project) DO UPDATE SET
		 collapsed = excluded.collapsed,
		 updated_at = excluded.updated_at`,
		project,
		flag,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save group preference %q: %w", project, err)
	}
	return nil
}
