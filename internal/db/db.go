package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/billmal071/archivedl/internal/config"
	_ "modernc.org/sqlite"
)

var database *sql.DB

const schema = `
CREATE TABLE IF NOT EXISTS rips (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    book_id         TEXT UNIQUE NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    page_count      INTEGER DEFAULT 0,
    first_page      INTEGER DEFAULT 1,
    last_page       INTEGER DEFAULT 0,
    scale           INTEGER DEFAULT 0,
    output_dir      TEXT NOT NULL,
    pdf_path        TEXT,
    status          TEXT DEFAULT 'pending',
    error_message   TEXT,
    verified        INTEGER DEFAULT 0,
    created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_rips_status ON rips(status);

CREATE TABLE IF NOT EXISTS pages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    rip_id          INTEGER NOT NULL,
    page_index      INTEGER NOT NULL,
    file_path       TEXT NOT NULL,
    size            INTEGER DEFAULT 0,
    status          TEXT DEFAULT 'pending',
    updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (rip_id) REFERENCES rips(id) ON DELETE CASCADE,
    UNIQUE(rip_id, page_index)
);

CREATE INDEX IF NOT EXISTS idx_pages_rip ON pages(rip_id);
`

// Init opens the database at the configured path
func Init() error {
	return Open(config.GetDBPath())
}

// Open initializes the database connection and schema at path
func Open(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	// A single connection keeps PRAGMA settings and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return err
	}

	// Create schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return err
	}

	database = db
	return nil
}

// DB returns the database connection
func DB() *sql.DB {
	return database
}

// Close closes the database connection
func Close() error {
	if database != nil {
		err := database.Close()
		database = nil
		return err
	}
	return nil
}
