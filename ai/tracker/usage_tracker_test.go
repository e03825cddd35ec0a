package tracker

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	qtest "github.com/teranos/featsmith/internal/testing"
	"github.com/teranos/featsmith/internal/util"
)

func attempt(op, unit string, at time.Time, success bool, tokens int, cost float64) *ModelUsage {
	response := at.Add(1500 * time.Millisecond)
	u := &ModelUsage{
		OperationType:     op,
		EntityType:        "unit",
		EntityID:          unit,
		ModelName:         "gpt-4o",
		ModelProvider:     "openai",
		ModelConfig:       NewModelConfig(util.Ptr(0.5), util.Ptr(4096)),
		RequestTimestamp:  at,
		ResponseTimestamp: &response,
		Success:           success,
	}
	if success {
		u.TokensUsed = util.Ptr(tokens)
		u.Cost = util.Ptr(cost)
	} else {
		u.ErrorMessage = util.Ptr("API request failed with status 502")
	}
	return u
}

func TestTrackUsage(t *testing.T) {
	db := qtest.CreateTestDB(t)
	tr := NewUsageTracker(db, zaptest.NewLogger(t).Sugar())

	now := time.Now()
	require.NoError(t, tr.TrackUsage(attempt("generate", "casting_0", now, true, 150, 0.05)))
	require.NoError(t, tr.TrackUsage(attempt("generate", "casting_1", now, false, 0, 0)))

	var (
		op, unit string
		tokens   sql.NullInt64
		success  bool
		errMsg   sql.NullString
		cfg      sql.NullString
	)
	require.NoError(t, db.QueryRow(`
		SELECT operation_type, entity_id, tokens_used, success, error_message, model_config
		FROM ai_model_usage WHERE entity_id = 'casting_1'`).Scan(&op, &unit, &tokens, &success, &errMsg, &cfg))

	assert.Equal(t, "generate", op)
	assert.False(t, tokens.Valid)
	assert.False(t, success)
	assert.Equal(t, "API request failed with status 502", errMsg.String)
	assert.JSONEq(t, `{"temperature":0.5,"max_tokens":4096}`, cfg.String)
}

func TestGetUsageStats(t *testing.T) {
	db := qtest.CreateTestDB(t)
	tr := NewUsageTracker(db, nil)

	now := time.Now()
	old := now.Add(-48 * time.Hour)
	require.NoError(t, tr.TrackUsage(attempt("generate", "casting_0", now.Add(-time.Hour), true, 100, 0.02)))
	require.NoError(t, tr.TrackUsage(attempt("generate", "casting_1", now.Add(-time.Hour), false, 0, 0)))
	require.NoError(t, tr.TrackUsage(attempt("repair", "casting_1", now.Add(-30*time.Minute), true, 300, 0.04)))
	require.NoError(t, tr.TrackUsage(attempt("generate", "vector_0", old, true, 1000, 1.0)))

	stats, err := tr.GetUsageStats(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRequests)
	assert.Equal(t, 2, stats.SuccessfulRequests)
	assert.Equal(t, 400, stats.TotalTokens)
	assert.InDelta(t, 0.06, stats.TotalCost, 1e-9)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	assert.Equal(t, 1, stats.UniqueModels)

	empty, err := tr.GetUsageStats(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, empty.TotalRequests)
	assert.Zero(t, empty.SuccessRate)
}

func TestGetModelBreakdown(t *testing.T) {
	db := qtest.CreateTestDB(t)
	tr := NewUsageTracker(db, nil)

	now := time.Now()
	require.NoError(t, tr.TrackUsage(attempt("generate", "a_0", now, true, 100, 0.01)))
	cheap := attempt("generate", "a_1", now, true, 100, 0.001)
	cheap.ModelName = "gpt-4o-mini"
	require.NoError(t, tr.TrackUsage(cheap))
	require.NoError(t, tr.TrackUsage(attempt("generate", "a_2", now, false, 0, 0)))

	breakdown, err := tr.GetModelBreakdown(now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "gpt-4o", breakdown[0].ModelName)
	assert.Equal(t, 1, breakdown[0].RequestCount, "failed attempts are excluded")
	require.NotNil(t, breakdown[0].AvgResponseTimeMs)
	assert.InDelta(t, 1500, *breakdown[0].AvgResponseTimeMs, 5)
	assert.Equal(t, "gpt-4o-mini", breakdown[1].ModelName)
}

func TestGetOperationBreakdown(t *testing.T) {
	db := qtest.CreateTestDB(t)
	tr := NewUsageTracker(db, nil)

	now := time.Now()
	require.NoError(t, tr.TrackUsage(attempt("generate", "a_0", now, true, 100, 0.01)))
	require.NoError(t, tr.TrackUsage(attempt("generate", "a_1", now, false, 0, 0)))
	require.NoError(t, tr.TrackUsage(attempt("repair", "a_1", now, true, 50, 0.01)))

	ops, err := tr.GetOperationBreakdown(now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []OperationBreakdown{
		{Operation: "generate", Requests: 2, Succeeded: 1, Tokens: 100},
		{Operation: "repair", Requests: 1, Succeeded: 1, Tokens: 50},
	}, ops)
}

func TestNewModelConfig(t *testing.T) {
	assert.Nil(t, NewModelConfig(nil, nil))

	cfg := NewModelConfig(nil, util.Ptr(2048))
	require.NotNil(t, cfg)
	assert.JSONEq(t, `{"max_tokens":2048}`, *cfg)
}

func TestTrackUsage_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tr := NewUsageTracker(db, nil)
	usage := attempt("repair", "vector_2", time.Now(), true, 10, 0.001)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ai_model_usage")).
		WithArgs(
			"repair", "unit", "vector_2", "gpt-4o", "openai",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, tr.TrackUsage(usage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackUsageError_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ai_model_usage").WillReturnError(sql.ErrConnDone)

	err = NewUsageTracker(db, nil).TrackUsage(attempt("generate", "vector_0", time.Now(), true, 1, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "vector_0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetModelBreakdownScanError_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"model_name", "model_provider", "count", "tokens", "cost", "avg"}).
		AddRow("gpt-4o", "openai", "not-a-number", 1, 0.1, nil)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err = NewUsageTracker(db, nil).GetModelBreakdown(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan model breakdown")
}

func TestGetUsageStatsError_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	_, err = NewUsageTracker(db, nil).GetUsageStats(time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
