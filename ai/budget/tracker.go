package budget

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/featsmith/errors"
)

// ErrBudgetExceeded is returned by Check when a limit has been reached
var ErrBudgetExceeded = errors.New("model budget exceeded")

// Window lengths. Sliding windows avoid spending a full limit just before
// and again just after midnight.
const (
	DailyWindow   = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// Config holds spend limits in USD. Zero disables a limit.
type Config struct {
	DailyUSD   float64
	MonthlyUSD float64
}

// Enabled reports whether any limit is set
func (c Config) Enabled() bool {
	return c.DailyUSD > 0 || c.MonthlyUSD > 0
}

// Status is spend against each limit
type Status struct {
	DailySpend       float64 `json:"daily_spend"`
	MonthlySpend     float64 `json:"monthly_spend"`
	DailyRemaining   float64 `json:"daily_remaining"`   // 0 when unlimited
	MonthlyRemaining float64 `json:"monthly_remaining"` // 0 when unlimited
	DailyOps         int     `json:"daily_ops"`
	MonthlyOps       int     `json:"monthly_ops"`
}

// Tracker checks recorded spend against Config
type Tracker struct {
	store  *Store
	config Config
	now    func() time.Time
}

// NewTracker creates a tracker
func NewTracker(db *sql.DB, config Config) *Tracker {
	return &Tracker{store: NewStore(db), config: config, now: time.Now}
}

// Limits returns the configured limits
func (t *Tracker) Limits() Config {
	return t.config
}

// GetStatus returns current spend for both windows
func (t *Tracker) GetStatus(ctx context.Context) (*Status, error) {
	now := t.now()
	daily, dailyOps, err := t.store.SpendSince(ctx, now.Add(-DailyWindow))
	if err != nil {
		return nil, errors.Wrap(err, "daily spend")
	}
	monthly, monthlyOps, err := t.store.SpendSince(ctx, now.Add(-MonthlyWindow))
	if err != nil {
		return nil, errors.Wrap(err, "monthly spend")
	}

	s := &Status{
		DailySpend:   daily,
		MonthlySpend: monthly,
		DailyOps:     dailyOps,
		MonthlyOps:   monthlyOps,
	}
	if t.config.DailyUSD > 0 {
		s.DailyRemaining = t.config.DailyUSD - daily
	}
	if t.config.MonthlyUSD > 0 {
		s.MonthlyRemaining = t.config.MonthlyUSD - monthly
	}
	return s, nil
}

// Check returns ErrBudgetExceeded when spend has reached a limit. A
// tracker without limits never queries the database.
func (t *Tracker) Check(ctx context.Context) error {
	if !t.config.Enabled() {
		return nil
	}
	status, err := t.GetStatus(ctx)
	if err != nil {
		return err
	}

	if t.config.DailyUSD > 0 && status.DailySpend >= t.config.DailyUSD {
		return errors.WithHint(
			errors.Wrapf(ErrBudgetExceeded, "daily spend $%.3f reached limit $%.2f", status.DailySpend, t.config.DailyUSD),
			"raise model.daily_budget_usd or wait for the 24h window to move",
		)
	}
	if t.config.MonthlyUSD > 0 && status.MonthlySpend >= t.config.MonthlyUSD {
		return errors.WithHint(
			errors.Wrapf(ErrBudgetExceeded, "monthly spend $%.3f reached limit $%.2f", status.MonthlySpend, t.config.MonthlyUSD),
			"raise model.monthly_budget_usd",
		)
	}
	return nil
}
