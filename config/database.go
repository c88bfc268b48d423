package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS app_inventory (
	device_id  TEXT NOT NULL,
	package    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	icon       TEXT NOT NULL DEFAULT '',
	color      TEXT NOT NULL DEFAULT '',
	captured_at INTEGER NOT NULL,
	PRIMARY KEY (device_id, package)
);
`

// InitDatabase opens (creating if needed) the SQLite file that persists the
// app-inventory cache across restarts.
func InitDatabase(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	return db, nil
}
