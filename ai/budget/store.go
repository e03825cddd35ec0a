// Package budget enforces model spend limits over sliding windows of the
// ai_model_usage table.
package budget

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/featsmith/errors"
)

// Store sums recorded spend
type Store struct {
	db *sql.DB
}

// NewStore creates a store over a migrated database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SpendSince returns the cost and count of successful attempts at or after since
func (s *Store) SpendSince(ctx context.Context, since time.Time) (float64, int, error) {
	var (
		total float64
		ops   int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost), 0), COUNT(*)
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1`, since.UTC()).Scan(&total, &ops)
	if err != nil {
		return 0, 0, errors.Wrap(err, "query spend")
	}
	return total, ops, nil
}
