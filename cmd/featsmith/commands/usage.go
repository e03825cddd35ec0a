package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/featsmith/ai/budget"
	"github.com/teranos/featsmith/ai/tracker"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/pipeline"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/pulse/emit"
)

// UsageCmd reports model usage recorded by the tracker
var UsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show model usage and cost",
	Long: `Summarize every recorded model attempt since a point in time: request
counts, tokens, estimated cost, and breakdowns per model and per operation
(generate, repair).

Examples:
  featsmith usage                 # last 24 hours
  featsmith usage --since 168h    # last week`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

var usageSince time.Duration

func init() {
	UsageCmd.Flags().DurationVar(&usageSince, "since", 24*time.Hour, "How far back to look")
}

func runUsage(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	t := tracker.NewUsageTracker(conn, logger.Logger)
	since := time.Now().Add(-usageSince)

	stats, err := t.GetUsageStats(since)
	if err != nil {
		return err
	}
	models, err := t.GetModelBreakdown(since)
	if err != nil {
		return err
	}
	ops, err := t.GetOperationBreakdown(since)
	if err != nil {
		return err
	}
	limits := pipeline.BudgetConfig(cfg.Model)
	spend, err := budget.NewTracker(conn, limits).GetStatus(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(cmd, map[string]interface{}{
			"stats":      stats,
			"models":     models,
			"operations": ops,
			"budget":     spend,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Since %s\n", since.Format(time.DateTime))
	fmt.Fprintf(out, "Requests: %d (%.1f%% succeeded)\n", stats.TotalRequests, stats.SuccessRate*100)
	fmt.Fprintf(out, "Tokens:   %d\n", stats.TotalTokens)
	fmt.Fprintf(out, "Cost:     $%.4f\n", stats.TotalCost)
	fmt.Fprintf(out, "Budget:   %s today, %s this month\n",
		spendLine(spend.DailySpend, limits.DailyUSD), spendLine(spend.MonthlySpend, limits.MonthlyUSD))

	em := emit.NewCLIEmitterTo(out, 0)
	if len(models) > 0 {
		rows := make([][]string, 0, len(models))
		for _, m := range models {
			avg := "-"
			if m.AvgResponseTimeMs != nil {
				avg = fmt.Sprintf("%.0fms", *m.AvgResponseTimeMs)
			}
			rows = append(rows, []string{m.ModelName, m.ModelProvider, strconv.Itoa(m.RequestCount),
				strconv.Itoa(m.TotalTokens), fmt.Sprintf("$%.4f", m.TotalCost), avg})
		}
		pulse.EmitTable(em, "By model", []string{"Model", "Provider", "Requests", "Tokens", "Cost", "Avg"}, rows)
	}
	if len(ops) > 0 {
		rows := make([][]string, 0, len(ops))
		for _, o := range ops {
			rows = append(rows, []string{o.Operation, strconv.Itoa(o.Requests), strconv.Itoa(o.Succeeded), strconv.Itoa(o.Tokens)})
		}
		pulse.EmitTable(em, "By operation", []string{"Operation", "Requests", "Succeeded", "Tokens"}, rows)
	}
	return nil
}

// spendLine renders spend against a limit; zero means unlimited
func spendLine(spent, limit float64) string {
	if limit <= 0 {
		return fmt.Sprintf("$%.4f (no limit)", spent)
	}
	return fmt.Sprintf("$%.4f of $%.2f", spent, limit)
}
