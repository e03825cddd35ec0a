// Package db opens the featsmith SQLite database and applies its embedded
// migrations. The database holds the run ledger and model usage rows.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
)

// SQLiteBusyTimeoutMS is how long a writer waits for a lock
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at path with WAL, foreign keys and a busy
// timeout on every connection. A nil logger operates silently.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log).Named("db")
	log.Debugw("Opening database", logger.FieldPath, path)

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d", path, SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	log.Debugw("Database opened", logger.FieldPath, path)
	return db, nil
}

// OpenWithMigrations opens path and brings its schema up to date
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return db, nil
}
