package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/analytics"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/output"
)

var (
	analyticsDays int
	analyticsJSON bool
)

var analyticsCmd = &cobra.Command{
	Use:     "analytics",
	Aliases: []string{"stats"},
	Short:   "Show board analytics",
	Long: `Show issue counts by status and priority, issues created in the recent
window, and per-user completion rates.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyticsRun()
	},
}

func init() {
	analyticsCmd.Flags().IntVar(&analyticsDays, "days", 0, "Recent activity window in days (default from analytics.recent_days)")
	analyticsCmd.Flags().BoolVar(&analyticsJSON, "json", false, "Print the summary as JSON")
	rootCmd.AddCommand(analyticsCmd)
}

func analyticsRun() error {
	ctx := context.Background()
	c, err := newController(ctx)
	if err != nil {
		return err
	}

	agg := newAggregator()
	if analyticsDays > 0 {
		agg = analytics.NewAggregator(analyticsDays)
	}
	sum := agg.Compute(c.Issues(), c.Users())

	if analyticsJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(ui.Out, "Total issues: %s\n", output.Cyan(fmt.Sprintf("%d", sum.Total)))
	fmt.Fprintf(ui.Out, "Created in the last %d days: %d\n\n", sum.RecentDays, sum.Recent)

	statusTable := ui.Table([]string{"Status", "Issues"})
	for _, st := range models.Statuses() {
		_ = statusTable.Append([]string{
			output.StatusColor(st.Title()),
			fmt.Sprintf("%d", sum.ByStatus[st]),
		})
	}
	_ = statusTable.Render()
	fmt.Fprintln(ui.Out)

	priorityTable := ui.Table([]string{"Priority", "Issues", "Share"})
	for _, p := range models.Priorities() {
		_ = priorityTable.Append([]string{
			output.PriorityColor(string(p)),
			fmt.Sprintf("%d", sum.ByPriority[p]),
			fmt.Sprintf("%d%%", sum.PriorityShare[p]),
		})
	}
	_ = priorityTable.Render()

	if len(sum.Users) == 0 {
		return nil
	}
	fmt.Fprintln(ui.Out)
	userTable := ui.Table([]string{"User", "Role", "Total", "Open", "Closed", "Completion"})
	for _, us := range sum.Users {
		_ = userTable.Append([]string{
			us.User.Name,
			string(us.User.Role),
			fmt.Sprintf("%d", us.Total),
			fmt.Sprintf("%d", us.Open),
			fmt.Sprintf("%d", us.Closed),
			output.RateColor(us.CompletionRate),
		})
	}
	_ = userTable.Render()
	return nil
}
