// Package ledger keeps the history of pipeline runs: one row per run with
// its aggregate counts, and one row per checked unit or file.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/report"
)

// ErrRunNotFound is returned by Get for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

// Status of a run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one row of the runs table
type Run struct {
	ID                 string     `json:"id"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	Features           []string   `json:"features"`
	Instances          int        `json:"instances"`
	Repair             bool       `json:"repair"`
	Generated          int        `json:"generated"`
	Skipped            int        `json:"skipped"`
	CompileTotal       int        `json:"compile_total"`
	CompileSucceeded   int        `json:"compile_succeeded"`
	ExecutionTotal     int        `json:"execution_total"`
	ExecutionSucceeded int        `json:"execution_succeeded"`
	Status             Status     `json:"status"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
}

// Outcome is the recorded result for one unit (compile) or file (execution)
type Outcome struct {
	Kind           report.Kind `json:"kind"`
	Subject        string      `json:"subject"`
	Success        bool        `json:"success"`
	Category       string      `json:"category,omitempty"`
	ExitCode       int         `json:"exit_code"`
	RepairAttempts int         `json:"repair_attempts"`
	Message        string      `json:"message,omitempty"`
}

// Totals are the counts written when a run finishes. Nil reports count as zero.
type Totals struct {
	Generated int
	Skipped   int
	Compile   *report.Report
	Execution *report.Report
}

// Ledger reads and writes run history
type Ledger struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// New creates a ledger over a migrated database
func New(db *sql.DB, log *zap.SugaredLogger) *Ledger {
	return &Ledger{db: db, logger: logger.OrNop(log).Named("ledger"), now: time.Now}
}

// Start inserts a running row for id
func (l *Ledger) Start(ctx context.Context, id string, features []string, instances int, repair bool) error {
	if features == nil {
		features = []string{}
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return errors.Wrap(err, "encode features")
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, features, instances, repair, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, l.now().UTC(), string(encoded), instances, repair, StatusRunning)
	if err != nil {
		return errors.Wrapf(err, "insert run %s", id)
	}

	l.logger.Debugw("Run started", logger.FieldRunID, id, logger.FieldCount, len(features))
	return nil
}

// Finish writes the totals and final status. A non-nil runErr marks the run failed.
func (l *Ledger) Finish(ctx context.Context, id string, totals Totals, runErr error) error {
	status := StatusCompleted
	var message *string
	if runErr != nil {
		status = StatusFailed
		m := runErr.Error()
		message = &m
	}

	ct, cs := counts(totals.Compile)
	et, es := counts(totals.Execution)
	res, err := l.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?, generated = ?, skipped = ?,
			compile_total = ?, compile_succeeded = ?,
			execution_total = ?, execution_succeeded = ?,
			status = ?, error_message = ?
		WHERE id = ?`,
		l.now().UTC(), totals.Generated, totals.Skipped,
		ct, cs, et, es, status, message, id)
	if err != nil {
		return errors.Wrapf(err, "finish run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrRunNotFound, "finish run %s", id)
	}

	l.logger.Debugw("Run finished", logger.FieldRunID, id, "status", status)
	return nil
}

func counts(r *report.Report) (int, int) {
	if r == nil {
		return 0, 0
	}
	return r.Total, r.Succeeded
}

// RecordOutcomes inserts outcomes for a run in one transaction
func (l *Ledger) RecordOutcomes(ctx context.Context, runID string, outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin outcome transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unit_outcomes (run_id, kind, subject, success, category, exit_code, repair_attempts, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare outcome insert")
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, runID, string(o.Kind), o.Subject, o.Success,
			nullString(o.Category), o.ExitCode, o.RepairAttempts, nullString(o.Message)); err != nil {
			return errors.Wrapf(err, "insert outcome for %s", o.Subject)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit outcomes")
	}
	l.logger.Debugw("Recorded outcomes", logger.FieldRunID, runID, logger.FieldCount, len(outcomes))
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const runColumns = `id, started_at, finished_at, features, instances, repair, generated, skipped,
	compile_total, compile_succeeded, execution_total, execution_succeeded, status, error_message`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
		features string
		message  sql.NullString
		status   string
	)
	err := s.Scan(&r.ID, &r.StartedAt, &finished, &features, &r.Instances, &r.Repair,
		&r.Generated, &r.Skipped, &r.CompileTotal, &r.CompileSucceeded,
		&r.ExecutionTotal, &r.ExecutionSucceeded, &status, &message)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if message.Valid {
		m := message.String
		r.ErrorMessage = &m
	}
	r.Status = Status(status)
	if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
		return nil, errors.Wrapf(err, "decode features of run %s", r.ID)
	}
	return &r, nil
}

// List returns the most recent runs, newest first. limit <= 0 means all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		out = append(out, *r)
	}
	return out, errors.Wrap(rows.Err(), "iterate runs")
}

// Get returns one run and its outcomes, compile outcomes first
func (l *Ledger) Get(ctx context.Context, id string) (*Run, []Outcome, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, errors.WithHint(errors.Wrapf(ErrRunNotFound, "run %s", id), "list runs with: featsmith runs ls")
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "get run %s", id)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT kind, subject, success, category, exit_code, repair_attempts, message
		FROM unit_outcomes
		WHERE run_id = ?
		ORDER BY CASE kind WHEN 'compile' THEN 0 ELSE 1 END, subject, id`, id)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "query outcomes of run %s", id)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o        Outcome
			kind     string
			category sql.NullString
			exitCode sql.NullInt64
			message  sql.NullString
		)
		if err := rows.Scan(&kind, &o.Subject, &o.Success, &category, &exitCode, &o.RepairAttempts, &message); err != nil {
			return nil, nil, errors.Wrap(err, "scan outcome")
		}
		o.Kind = report.Kind(kind)
		o.Category = category.String
		o.ExitCode = int(exitCode.Int64)
		o.Message = message.String
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "iterate outcomes")
	}
	return r, outcomes, nil
}
