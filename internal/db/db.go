// Package db opens the SQLite database kept under a workspace's .neodisc
// directory.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dirName       = ".neodisc"
	defaultDBName = "neodisc.db"
)

// ErrNoDatabase is returned when a read-only open finds no database file.
var ErrNoDatabase = errors.New("workspace has no database")

type Config struct {
	Workspace string
	// ReadOnly opens an existing file without write access, for observation
	// stores shared between workspaces.
	ReadOnly bool
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName, defaultDBName)
}

// EnsureWorkspace creates the workspace data directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, dirName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the workspace database. Writers wait on the busy timeout
// rather than failing at once, and run_events rows follow their run on
// delete.
func Open(cfg Config) (*sql.DB, error) {
	path := dbPath(cfg.Workspace)
	mode := "rwc"
	if cfg.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", path, ErrNoDatabase)
			}
			return nil, err
		}
		mode = "ro"
	} else if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path, mode)
	return sql.Open("sqlite", dsn)
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
