// Package tracker records every model attempt (successful or not) in the
// ai_model_usage table and answers usage questions for `featsmith usage`.
package tracker

import (
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/internal/util"
	"github.com/teranos/featsmith/logger"
)

// ModelUsage is one model attempt
type ModelUsage struct {
	ID                int        `json:"id" db:"id"`
	OperationType     string     `json:"operation_type" db:"operation_type"` // generate, repair
	EntityType        string     `json:"entity_type" db:"entity_type"`
	EntityID          string     `json:"entity_id" db:"entity_id"` // unit name
	ModelName         string     `json:"model_name" db:"model_name"`
	ModelProvider     string     `json:"model_provider" db:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty" db:"model_config"`
	RequestTimestamp  time.Time  `json:"request_timestamp" db:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty" db:"response_timestamp"`
	TokensUsed        *int       `json:"tokens_used,omitempty" db:"tokens_used"`
	Cost              *float64   `json:"cost,omitempty" db:"cost"`
	Success           bool       `json:"success" db:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// ModelConfig is the request configuration stored as JSON with each row
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// UsageTracker writes and aggregates ModelUsage rows
type UsageTracker struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewUsageTracker creates a tracker over a migrated database
func NewUsageTracker(db *sql.DB, log *zap.SugaredLogger) *UsageTracker {
	return &UsageTracker{db: db, logger: logger.OrNop(log).Named("tracker")}
}

// TrackUsage inserts one row. Timestamps are stored in UTC so range
// queries compare like with like.
func (t *UsageTracker) TrackUsage(usage *ModelUsage) error {
	var response *time.Time
	if usage.ResponseTimestamp != nil {
		utc := usage.ResponseTimestamp.UTC()
		response = &utc
	}

	_, err := t.db.Exec(`
		INSERT INTO ai_model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, tokens_used,
			cost, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		usage.RequestTimestamp.UTC(), response, usage.TokensUsed,
		usage.Cost, usage.Success, usage.ErrorMessage,
	)
	if err != nil {
		return errors.Wrapf(err, "insert usage for %s", usage.EntityID)
	}

	t.logger.Debugw("Tracked model attempt",
		"operation", usage.OperationType,
		logger.FieldUnit, usage.EntityID,
		"success", usage.Success,
	)
	return nil
}

// UsageStats aggregates attempts since a point in time
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
}

// GetUsageStats returns totals for attempts at or after since
func (t *UsageTracker) GetUsageStats(since time.Time) (*UsageStats, error) {
	var stats UsageStats
	err := t.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN success = 1 THEN 1 END),
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0),
			COALESCE(SUM(COALESCE(cost, 0)), 0),
			COUNT(DISTINCT model_name)
		FROM ai_model_usage
		WHERE request_timestamp >= ?`, since.UTC()).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query usage stats")
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// ModelBreakdown is usage for one model
type ModelBreakdown struct {
	ModelName         string   `json:"model_name"`
	ModelProvider     string   `json:"model_provider"`
	RequestCount      int      `json:"request_count"`
	TotalTokens       int      `json:"total_tokens"`
	TotalCost         float64  `json:"total_cost"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// GetModelBreakdown returns successful attempts grouped by model, most
// expensive first.
func (t *UsageTracker) GetModelBreakdown(since time.Time) ([]ModelBreakdown, error) {
	rows, err := t.db.Query(`
		SELECT
			model_name,
			model_provider,
			COUNT(*),
			SUM(COALESCE(tokens_used, 0)),
			SUM(COALESCE(cost, 0)),
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END)
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1
		GROUP BY model_name, model_provider
		ORDER BY SUM(COALESCE(cost, 0)) DESC, model_name`, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query model breakdown")
	}
	defer rows.Close()

	var out []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		var avg sql.NullFloat64
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount,
			&mb.TotalTokens, &mb.TotalCost, &avg); err != nil {
			return nil, errors.Wrap(err, "scan model breakdown")
		}
		if avg.Valid {
			v := avg.Float64
			mb.AvgResponseTimeMs = &v
		}
		out = append(out, mb)
	}
	return out, errors.Wrap(rows.Err(), "iterate model breakdown")
}

// OperationBreakdown is usage for one operation (generate, repair)
type OperationBreakdown struct {
	Operation string `json:"operation"`
	Requests  int    `json:"requests"`
	Succeeded int    `json:"succeeded"`
	Tokens    int    `json:"tokens"`
}

// GetOperationBreakdown groups all attempts by operation type
func (t *UsageTracker) GetOperationBreakdown(since time.Time) ([]OperationBreakdown, error) {
	rows, err := t.db.Query(`
		SELECT
			operation_type,
			COUNT(*),
			COUNT(CASE WHEN success = 1 THEN 1 END),
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0)
		FROM ai_model_usage
		WHERE request_timestamp >= ?
		GROUP BY operation_type
		ORDER BY operation_type`, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query operation breakdown")
	}
	defer rows.Close()

	var out []OperationBreakdown
	for rows.Next() {
		var ob OperationBreakdown
		if err := rows.Scan(&ob.Operation, &ob.Requests, &ob.Succeeded, &ob.Tokens); err != nil {
			return nil, errors.Wrap(err, "scan operation breakdown")
		}
		out = append(out, ob)
	}
	return out, errors.Wrap(rows.Err(), "iterate operation breakdown")
}

// NewModelConfig serializes request settings for the model_config column
func NewModelConfig(temperature *float64, maxTokens *int) *string {
	if temperature == nil && maxTokens == nil {
		return nil
	}
	data, err := json.Marshal(ModelConfig{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil
	}
	return util.Ptr(string(data))
}
