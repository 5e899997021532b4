package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/board"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/output"
	"github.com/joescharf/trackflow/internal/store"
)

var (
	issueTitle     string
	issueDesc      string
	issuePriority  string
	issueStatus    string
	issueAssignee  string
	issueLabels    string
	issueSearch    string
	issueSort      string
	issueDirection string
	issueTriage    bool
	issueApply     bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Create, list, update, move and delete issues on the board.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	Long: `Add a new issue. Status defaults to open and priority to medium.

With --triage, an LLM suggests a description, priority and labels for
any of those not given on the command line.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd)
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long:    "List issues, filtered and sorted. Defaults to most recently updated first.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Long:  `Update an issue. Only the given flags change. Use --assignee none or --labels none to clear.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd, args[0])
	},
}

var issueMoveCmd = &cobra.Command{
	Use:   "move <issue-id> <status>",
	Short: "Move an issue to another column",
	Long:  "Move an issue to open, in-progress, review or closed.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueMoveRun(args[0], models.IssueStatus(args[1]))
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <issue-id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueMoveRun(args[0], models.IssueStatusClosed)
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

var issueBulkCmd = &cobra.Command{
	Use:   "bulk <status> [issue-id...]",
	Short: "Change the status of several issues at once",
	Long: `Change the status of several issues at once.

Without issue IDs, every issue matching the filter flags is selected.
Any failure fails the whole batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueBulkRun(models.IssueStatus(args[0]), args[1:])
	},
}

var issueTriageCmd = &cobra.Command{
	Use:   "triage <issue-id>",
	Short: "Ask an LLM for a description, priority and labels",
	Long: `Ask an LLM for a description, priority and labels for an issue.

Requires ANTHROPIC_API_KEY environment variable or anthropic.api_key in config.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueTriageRun(args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: low, medium, high, critical (default medium)")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Status: open, in-progress, review, closed (default open)")
	issueAddCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Assignee: user ID or name")
	issueAddCmd.Flags().StringVar(&issueLabels, "labels", "", "Comma-separated label names or IDs")
	issueAddCmd.Flags().BoolVar(&issueTriage, "triage", false, "Fill in missing fields with LLM suggestions")
	_ = issueAddCmd.MarkFlagRequired("title")

	addFilterFlags(issueListCmd)
	issueListCmd.Flags().StringVar(&issueSort, "sort", "updatedAt", "Sort key: title, status, priority, updatedAt, createdAt")
	issueListCmd.Flags().StringVar(&issueDirection, "direction", "desc", "Sort direction: asc, desc")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")
	issueUpdateCmd.Flags().StringVar(&issueAssignee, "assignee", "", "New assignee: user ID or name, or none")
	issueUpdateCmd.Flags().StringVar(&issueLabels, "labels", "", "Replacement labels: comma-separated names or IDs, or none")

	addFilterFlags(issueBulkCmd)

	issueTriageCmd.Flags().BoolVar(&issueApply, "apply", false, "Apply the suggestion to the issue")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueMoveCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	issueCmd.AddCommand(issueBulkCmd)
	issueCmd.AddCommand(issueTriageCmd)
	rootCmd.AddCommand(issueCmd)
}

// addFilterFlags registers the board filter flags on cmd.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: open, in-progress, review, closed")
	cmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority: low, medium, high, critical")
	cmd.Flags().StringVar(&issueAssignee, "assignee", "", "Filter by assignee: user ID or name")
	cmd.Flags().StringVar(&issueSearch, "search", "", "Filter by text in title, description or ID")
}

// filterCriteria builds board criteria from the filter flags.
func filterCriteria(ctx context.Context, s store.Store) (board.Criteria, error) {
	c := board.Criteria{
		Status:   models.IssueStatus(issueStatus),
		Priority: models.IssuePriority(issuePriority),
		Search:   issueSearch,
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	ref, err := store.ResolveUser(ctx, s, issueAssignee)
	if err != nil {
		return c, err
	}
	c.Assignee = ref
	return c, nil
}

func issueAddRun(cmd *cobra.Command) error {
	ctx := context.Background()
	c, err := newController(ctx)
	if err != nil {
		return err
	}
	s, _ := getStore()

	issue := &models.Issue{
		Title:       issueTitle,
		Description: issueDesc,
		Status:      models.IssueStatus(issueStatus),
		Priority:    models.IssuePriority(issuePriority),
	}
	if issue.Assignee, err = store.ResolveUser(ctx, s, issueAssignee); err != nil {
		return err
	}
	if issue.LabelIDs, err = store.ResolveLabels(ctx, s, store.SplitList(issueLabels)); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add issue: %s [%s/%s]", issue.Title, issue.Status, issue.Priority)
		return nil
	}

	created, err := c.CreateIssue(ctx, issue)
	if err != nil {
		return err
	}
	ui.Info("Created issue %s: %s", output.Cyan(shortID(created.ID)), created.Title)

	if !issueTriage {
		return nil
	}
	triager := newLLMClient()
	if triager == nil {
		ui.Warning("Skipping triage: ANTHROPIC_API_KEY not set")
		return nil
	}
	labels, err := s.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	ui.Info("Triaging with LLM...")
	t, err := triager.TriageIssue(ctx, created, labels)
	if err != nil {
		ui.Warning("Issue created but triage failed: %v", err)
		return nil
	}

	patch := t.Apply(labels)
	if issueDesc != "" {
		patch.Description = nil
	}
	if cmd.Flags().Changed("priority") {
		patch.Priority = nil
	}
	if issueLabels != "" {
		patch.LabelIDs = nil
	}
	if patch.Empty() {
		return nil
	}
	_, err = c.UpdateIssue(ctx, created.ID, patch)
	return err
}

func issueListRun() error {
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
		return err
	}
	issues = board.Apply(issues, q)

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	names, err := loadNames(ctx, s)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assignee", "Labels", "Updated"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			names.user(issue.Assignee),
			names.labelList(issue.LabelIDs),
			timeAgo(issue.UpdatedAt),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(id string) error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}
	names, err := loadNames(ctx, s)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	fmt.Fprintf(ui.Out, "  Assignee:   %s\n", names.user(issue.Assignee))
	if len(issue.LabelIDs) > 0 {
		fmt.Fprintf(ui.Out, "  Labels:     %s\n", names.labelSwatches(issue.LabelIDs))
	}
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s (%s)\n", issue.UpdatedAt.Format(time.RFC3339), timeAgo(issue.UpdatedAt))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	return nil
}

func issueUpdateRun(cmd *cobra.Command, id string) error {
	ctx := context.Background()
	c, err := newController(ctx)
	if err != nil {
		return err
	}
	s, _ := getStore()

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}

	var patch models.IssuePatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		patch.Title = &issueTitle
	}
	if flags.Changed("desc") {
		patch.Description = &issueDesc
	}
	if flags.Changed("status") {
		st := models.IssueStatus(issueStatus)
		patch.Status = &st
	}
	if flags.Changed("priority") {
		p := models.IssuePriority(issuePriority)
		patch.Priority = &p
	}
	if flags.Changed("assignee") {
		ref := ""
		if issueAssignee != "none" {
			if ref, err = store.ResolveUser(ctx, s, issueAssignee); err != nil {
				return err
			}
		}
		patch.Assignee = &ref
	}
	if flags.Changed("labels") {
		ids := []int64{}
		if issueLabels != "none" {
			if ids, err = store.ResolveLabels(ctx, s, store.SplitList(issueLabels)); err != nil {
				return err
			}
		}
		patch.LabelIDs = &ids
	}

	if patch.Empty() {
		return fmt.Errorf("no updates specified (use --title, --desc, --status, --priority, --assignee or --labels)")
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", shortID(issue.ID))
		return nil
	}

	_, err = c.UpdateIssue(ctx, issue.ID, patch)
	return err
}

func issueMoveRun(id string, status models.IssueStatus) error {
	ctx := context.Background()
	c, err := newController(ctx)
	if err != nil {
		return err
	}
	s, _ := getStore()

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would move issue %s to %s", shortID(issue.ID), status.Title())
		return nil
	}

	if issue.Status == status {
		ui.Info("Issue %s is already %s", output.Cyan(shortID(issue.ID)), status.Title())
	}
	_, err = c.ChangeStatus(ctx, issue.ID, status)
	return err
}

func issueDeleteRun(id string) error {
	ctx := context.Background()
	c, err := newController(ctx)
	if err != nil {
		return err
	}
	s, _ := getStore()

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}
	return c.DeleteIssue(ctx, issue.ID)
}

func issueBulkRun(status models.IssueStatus, refs []string) error {
	ctx := context.Background()
	c, err := newController(ctx)
	if err != nil {
		return err
	}
	s, _ := getStore()

	if len(refs) > 0 {
		for _, ref := range refs {
			issue, err := store.FindIssue(ctx, s, ref)
			if err != nil {
				return err
			}
			c.ToggleSelect(issue.ID)
		}
	} else {
		criteria, err := filterCriteria(ctx, s)
		if err != nil {
			return err
		}
		if criteria.IsZero() {
			return fmt.Errorf("no issues given (pass issue IDs or at least one filter flag)")
		}
		c.SetCriteria(criteria)
		c.SelectAll()
	}

	selected := c.Selected()
	if len(selected) == 0 {
		ui.Info("No issues selected.")
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would move %d issues to %s", len(selected), status.Title())
		return nil
	}

	_, err = c.BulkChangeSelected(ctx, status)
	return err
}

func issueTriageRun(id string) error {
	ctx := context.Background()
	triager := newLLMClient()
	if triager == nil {
		return fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config)")
	}

	c, err := newController(ctx)
	if err != nil {
		return err
	}
	s, _ := getStore()

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}
	labels, err := s.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}

	ui.Info("Triaging %s with LLM (%s)...", output.Cyan(shortID(issue.ID)), llmModel())
	t, err := triager.TriageIssue(ctx, issue, labels)
	if err != nil {
		return fmt.Errorf("triage issue: %w", err)
	}

	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(strings.ToLower(t.Priority)))
	fmt.Fprintf(ui.Out, "  Labels:     %s\n", strings.Join(t.Labels, ", "))
	fmt.Fprintf(ui.Out, "  Desc:       %s\n", t.Description)
	if t.Rationale != "" {
		fmt.Fprintf(ui.Out, "  Rationale:  %s\n", t.Rationale)
	}

	if !issueApply {
		return nil
	}
	patch := t.Apply(labels)
	if patch.Empty() {
		ui.Warning("Nothing to apply")
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would apply triage to issue %s", shortID(issue.ID))
		return nil
	}
	_, err = c.UpdateIssue(ctx, issue.ID, patch)
	return err
}
