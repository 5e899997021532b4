package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/board"
	"github.com/joescharf/trackflow/internal/output"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the kanban board",
	Long: `Show issues grouped into the four board columns: open, in progress,
review and closed. Filters and sort apply to every column.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return boardRun()
	},
}

func init() {
	addFilterFlags(boardCmd)
	boardCmd.Flags().StringVar(&issueSort, "sort", "updatedAt", "Sort key: title, status, priority, updatedAt, createdAt")
	boardCmd.Flags().StringVar(&issueDirection, "direction", "desc", "Sort direction: asc, desc")
	rootCmd.AddCommand(boardCmd)
}

// boardQuery builds the board query from the filter and sort flags.
func boardQuery(ctx context.Context) (board.Query, error) {
	s, err := getStore()
	if err != nil {
		return board.Query{}, err
	}
	q := board.DefaultQuery()
	if q.Criteria, err = filterCriteria(ctx, s); err != nil {
		return q, err
	}
	if issueSort != "" {
		if q.Sort, err = board.ParseSortKey(issueSort); err != nil {
			return q, err
		}
	}
	if issueDirection != "" {
		if q.Direction, err = board.ParseDirection(issueDirection); err != nil {
			return q, err
		}
	}
	return q, nil
}

func boardRun() error {
	ctx := context.Background()
	c, err := newController(ctx)
	if err != nil {
		return err
	}
	q, err := boardQuery(ctx)
	if err != nil {
		return err
	}
	c.SetCriteria(q.Criteria)
	c.SetSort(q.Sort, q.Direction)

	s, _ := getStore()
	n, err := loadNames(ctx, s)
	if err != nil {
		return err
	}

	if !q.Criteria.IsZero() {
		ui.Info("Showing %d of %d issues (filtered)", len(c.View()), len(c.Issues()))
	}

	for _, col := range c.Columns() {
		fmt.Fprintf(ui.Out, "\n%s (%d)\n", output.StatusColor(col.Title), col.Count)
		if col.Count == 0 {
			fmt.Fprintln(ui.Out, "  No issues")
			continue
		}
		table := ui.Table([]string{"ID", "Title", "Priority", "Assignee", "Labels", "Updated"})
		for _, issue := range col.Issues {
			_ = table.Append([]string{
				shortID(issue.ID),
				issue.Title,
				output.PriorityColor(string(issue.Priority)),
				n.user(issue.Assignee),
				n.labelList(issue.LabelIDs),
				timeAgo(issue.UpdatedAt),
			})
		}
		_ = table.Render()
	}
	return nil
}
