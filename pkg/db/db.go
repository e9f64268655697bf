package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Database holds the SQLite handle shared by the store and the kline writer.
type Database struct {
	DB *sql.DB
}

// New opens the SQLite database at path, creating the parent directory and
// the file when missing. Pass ":memory:" for an ephemeral database.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY between the writer
	// goroutine and API reads.
	handle.SetMaxOpenConns(1)
	handle.SetConnMaxLifetime(time.Hour)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Database{DB: handle}, nil
}

func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
