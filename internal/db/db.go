package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "prototypes.db"

type Config struct {
	// Dir is the artifact directory holding the archive.
	Dir string
	// MustExist fails instead of creating a fresh archive.
	MustExist bool
}

func dbPath(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, defaultDBName)
}

// EnsureDir creates the artifact directory if missing.
func EnsureDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the SQLite archive with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.MustExist {
		if _, err := os.Stat(dbPath(cfg.Dir)); err != nil {
			return nil, err
		}
	} else if _, err := EnsureDir(cfg.Dir); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath(cfg.Dir))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the archive path for the artifact directory.
func Path(dir string) string {
	return dbPath(dir)
}
