// Package testing holds shared test fixtures.
package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teranos/featsmith/db"
)

// CreateTestDB creates an in-memory SQLite database with every featsmith
// migration applied. Cleanup is registered via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	// Each connection to :memory: is a separate database
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() {
		conn.Close()
	})

	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return conn
}
