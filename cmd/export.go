package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/board"
	"github.com/joescharf/trackflow/internal/models"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues as JSON, CSV or Markdown",
	Long: `Export issues in the current filter and sort order. Assignees and labels
are written by name. Writes to stdout unless --output is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	addFilterFlags(exportCmd)
	exportCmd.Flags().StringVar(&issueSort, "sort", "updatedAt", "Sort key: title, status, priority, updatedAt, createdAt")
	exportCmd.Flags().StringVar(&issueDirection, "direction", "desc", "Sort direction: asc, desc")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json, csv, md")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

// exportRecord is the flattened issue shape written by every format.
type exportRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Assignee    string   `json:"assignee"`
	Labels      []string `json:"labels"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

func exportRecords(issues []*models.Issue, n *names) []exportRecord {
	out := make([]exportRecord, 0, len(issues))
	for _, issue := range issues {
		assignee := ""
		if issue.Assignee != "" {
			assignee = n.user(issue.Assignee)
		}
		out = append(out, exportRecord{
			ID:          issue.ID,
			Title:       issue.Title,
			Description: issue.Description,
			Status:      string(issue.Status),
			Priority:    string(issue.Priority),
			Assignee:    assignee,
			Labels:      n.labelNames(issue.LabelIDs),
			CreatedAt:   issue.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:   issue.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func exportRun() error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}
	q, err := boardQuery(ctx)
	if err != nil {
		return err
	}
	issues, err := s.ListIssues(ctx)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	n, err := loadNames(ctx, s)
	if err != nil {
		return err
	}
	records := exportRecords(board.Apply(issues, q), n)

	w := ui.Out
	if exportOutput != "" {
		if dryRun {
			ui.DryRunMsg("Would export %d issues to %s", len(records), exportOutput)
			return nil
		}
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOutput, err)
		}
		defer f.Close()
		w = f
	}

	if err := writeExport(w, exportFormat, records); err != nil {
		return err
	}
	if exportOutput != "" {
		ui.Success("Exported %d issues to %s", len(records), exportOutput)
	}
	return nil
}

func writeExport(w io.Writer, format string, records []exportRecord) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "csv":
		return writeCSV(w, records)
	case "md", "markdown":
		return writeMarkdown(w, records)
	default:
		return fmt.Errorf("unknown export format %q (want json, csv or md)", format)
	}
}

func writeCSV(w io.Writer, records []exportRecord) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "title", "description", "status", "priority", "assignee", "labels", "createdAt", "updatedAt"})
	for _, r := range records {
		_ = cw.Write([]string{
			r.ID, r.Title, r.Description, r.Status, r.Priority, r.Assignee,
			strings.Join(r.Labels, ";"), r.CreatedAt, r.UpdatedAt,
		})
	}
	cw.Flush()
	return cw.Error()
}

// writeMarkdown groups issues under one heading per board column.
func writeMarkdown(w io.Writer, records []exportRecord) error {
	byStatus := make(map[string][]exportRecord)
	for _, r := range records {
		byStatus[r.Status] = append(byStatus[r.Status], r)
	}
	var b strings.Builder
	b.WriteString("# Issues\n")
	for _, st := range models.Statuses() {
		group := byStatus[string(st)]
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", st.Title(), len(group))
		for _, r := range group {
			fmt.Fprintf(&b, "- [%s] %s", r.Priority, r.Title)
			if r.Assignee != "" {
				fmt.Fprintf(&b, " @%s", r.Assignee)
			}
			if len(r.Labels) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(r.Labels, ", "))
			}
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
