/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/logging"
	"github.com/loqalabs/loqa-voice/internal/security"
)

//go:embed *.sql
var schemaFiles embed.FS

// schemaVersion is stored in PRAGMA user_version once schema.sql is applied.
// Bump it together with a new migration step in migrate.
const schemaVersion = 1

// connPragmas run on every pooled connection, not just the first one.
// The event log is append-mostly with occasional list/prune reads.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// Database is the SQLite file holding completion events
type Database struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the completion event database at
// cfg.Path and brings its schema up to date.
func Open(cfg config.StorageConfig) (*Database, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &Database{db: db, path: cfg.Path}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logging.LogDatabaseOperation("connect", "", zap.String("path", security.SanitizeLogInput(cfg.Path)))
	return d, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func (d *Database) migrate() error {
	var version int
	if err := d.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	schemaSQL, err := schemaFiles.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	// PRAGMA does not accept bound parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logging.LogDatabaseOperation("migrate", "completion_events",
		zap.Int("from_version", version), zap.Int("to_version", schemaVersion))
	return nil
}

// DB returns the underlying sql.DB instance
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close checkpoints the WAL into the main file and closes the pool
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	if err := d.Checkpoint(); err != nil {
		logging.LogWarn("WAL checkpoint before close failed", zap.Error(err))
	}
	logging.LogDatabaseOperation("close", "", zap.String("path", security.SanitizeLogInput(d.path)))
	return d.db.Close()
}

// Ping tests the database connection
func (d *Database) Ping() error {
	return d.db.Ping()
}

// GetPath returns the database file path
func (d *Database) GetPath() string {
	return d.path
}

// Checkpoint folds the WAL back into the main database file
func (d *Database) Checkpoint() error {
	if _, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint database: %w", err)
	}
	logging.LogDatabaseOperation("checkpoint", "")
	return nil
}
