// Package sqlite provides SQLite persistence.
package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver
)

const schemaVersion = 2

// DB is an open SQLite database with the application schema.
type DB struct {
	db *sql.DB
}

// Open opens the database at path, creating it and its directory if needed.
// ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	zlog.Debug().Msgf("sqlite: database opened: path=%s", path)
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS favorites (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			subtitle TEXT,
			artwork_uri TEXT,
			playback_uri TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			added_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_favorites_kind ON favorites(kind);
	`)
	if err != nil {
		return err
	}

	// Version 1 databases predate the duration column.
	hasDuration, err := hasColumn(db, "favorites", "duration_ms")
	if err != nil {
		return err
	}
	if !hasDuration {
		if _, err := db.Exec(`ALTER TABLE favorites ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0`); err != nil {
			return errors.Wrap(err, "failed to add favorites.duration_ms")
		}
		zlog.Info().Msg("sqlite: migrated favorites: added duration_ms")
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, errors.Wrapf(err, "failed to inspect table %s", table)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// withTx executes fn within a transaction.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
