// Package report aggregates check outcomes into counts, a failure list and a
// per-category breakdown.
package report

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names which check produced a report
type Kind string

const (
	KindCompile   Kind = "compile"
	KindExecution Kind = "execution"
)

// Failure categories
const (
	CategoryExit         = "exit"         // non-zero exit code
	CategoryTimeout      = "timeout"      // exceeded the invocation timeout
	CategoryLaunch       = "launch"       // binary could not be started
	CategoryMissing      = "missing"      // source file vanished before execution
	CategoryPrecondition = "precondition" // unit without sources
)

// Failure is one unit or file that did not pass
type Failure struct {
	Subject  string `json:"subject"` // unit directory or source file
	Category string `json:"category"`
	ExitCode int    `json:"exit_code"`
	Message  string `json:"message,omitempty"`
}

// Report counts outcomes for one kind of check. The zero value is not
// usable; create reports with New.
type Report struct {
	Kind      Kind      `json:"kind"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failures  []Failure `json:"failures"`
}

// New returns an empty report
func New(kind Kind) *Report {
	return &Report{Kind: kind, Failures: []Failure{}}
}

// Success records one passing subject
func (r *Report) Success() {
	r.Total++
	r.Succeeded++
}

// Fail records one failing subject
func (r *Report) Fail(f Failure) {
	r.Total++
	r.Failures = append(r.Failures, f)
}

// Failed returns Total - Succeeded
func (r *Report) Failed() int {
	return r.Total - r.Succeeded
}

// Merge returns the combination of r and other. Merge is commutative and
// associative: failures are kept sorted by subject then category.
func (r *Report) Merge(other *Report) *Report {
	out := New(r.Kind)
	out.Total = r.Total + other.Total
	out.Succeeded = r.Succeeded + other.Succeeded
	out.Failures = append(out.Failures, r.Failures...)
	out.Failures = append(out.Failures, other.Failures...)
	sortFailures(out.Failures)
	return out
}

// Sort orders failures by subject then category
func (r *Report) Sort() {
	sortFailures(r.Failures)
}

func sortFailures(f []Failure) {
	sort.SliceStable(f, func(i, j int) bool {
		if f[i].Subject != f[j].Subject {
			return f[i].Subject < f[j].Subject
		}
		if f[i].Category != f[j].Category {
			return f[i].Category < f[j].Category
		}
		return f[i].ExitCode < f[j].ExitCode
	})
}

// SuccessRate is Succeeded/Total as a percentage; 0 for an empty report
func (r *Report) SuccessRate() float64 {
	return percent(r.Succeeded, r.Total)
}

// Categories counts failures per category
func (r *Report) Categories() map[string]int {
	counts := make(map[string]int)
	for _, f := range r.Failures {
		counts[f.Category]++
	}
	return counts
}

// CategoryShare is one line of the category breakdown
type CategoryShare struct {
	Category string
	Count    int
	Percent  float64 // share of Total
}

// Breakdown returns the failure categories ordered by count, then name
func (r *Report) Breakdown() []CategoryShare {
	var shares []CategoryShare
	for cat, n := range r.Categories() {
		shares = append(shares, CategoryShare{Category: cat, Count: n, Percent: percent(n, r.Total)})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Category < shares[j].Category
	})
	return shares
}

// Summary renders the report as plain text:
//
//	compile: 2/3 succeeded (66.7%)
//	  exit: 1 (33.3%)
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d/%d succeeded (%.1f%%)\n", r.Kind, r.Succeeded, r.Total, r.SuccessRate())
	for _, s := range r.Breakdown() {
		fmt.Fprintf(&b, "  %s: %d (%.1f%%)\n", s.Category, s.Count, s.Percent)
	}
	return b.String()
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
