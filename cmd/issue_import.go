package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/llm"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

var (
	importOffline bool
	importDryRun  bool
)

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a markdown file",
	Long: `Import issues from a markdown file using an LLM to extract structured data.

The markdown file should contain issues as numbered or bulleted lists,
optionally grouped under "## Label <name>" headings. Issues whose title
already exists are skipped.

Requires ANTHROPIC_API_KEY environment variable or anthropic.api_key in config,
unless --offline is given, in which case keyword heuristics pick the
priority and labels.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(args[0])
	},
}

func init() {
	issueImportCmd.Flags().BoolVar(&importOffline, "offline", false, "Parse the file locally instead of using the LLM")
	issueImportCmd.Flags().BoolVar(&importDryRun, "preview", false, "Preview extracted issues without creating them")
	issueCmd.AddCommand(issueImportCmd)
}

func issueImportRun(file string) error {
	// Read the markdown file
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	labels, err := s.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}

	var extracted []llm.ExtractedIssue
	if importOffline {
		extracted = parseMarkdownIssues(content)
	} else {
		client := newLLMClient()
		if client == nil {
			return fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config, or use --offline)")
		}
		ui.Info("Extracting issues with LLM (%s)...", llmModel())
		if extracted, err = client.ExtractIssues(ctx, content, labels); err != nil {
			return fmt.Errorf("extract issues: %w", err)
		}
	}

	if len(extracted) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	// Preview table
	table := ui.Table([]string{"#", "Title", "Priority", "Labels"})
	for i, e := range extracted {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.Title,
			e.Priority,
			strings.Join(e.Labels, ", "),
		})
	}
	_ = table.Render()

	if importDryRun || dryRun {
		ui.DryRunMsg("Would create up to %d issues", len(extracted))
		return nil
	}

	return createExtractedIssues(ctx, s, extracted)
}

// parseSubIssueNumber checks if a line starts with a sub-issue number like "1.1" or "2.3."
// Returns the title text and true if it's a sub-issue, or empty and false otherwise.
func parseSubIssueNumber(line string) (title string, ok bool) {
	// Pattern: digits.digits[.] space text (e.g., "1.1 text" or "1.1. text")
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	i++
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return "", false // a regular "1. text" item
	}
	if i < len(line) && line[i] == '.' {
		i++
	}
	if i >= len(line) || line[i] != ' ' {
		return "", false
	}
	title = strings.TrimSpace(line[i:])
	if title == "" {
		return "", false
	}
	return title, true
}

// listItemTitle returns the text of a "1. text", "- text" or "* text" line.
func listItemTitle(line string) (title string, numbered bool) {
	if len(line) <= 2 {
		return "", false
	}
	for i, c := range line {
		if c == '.' && i > 0 && i < 4 {
			return strings.TrimSpace(line[i+1:]), true
		}
		if c < '0' || c > '9' {
			break
		}
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), false
	}
	return "", false
}

// parseMarkdownIssues does a simple parse of markdown to extract numbered/bulleted items.
// Items under a "## Label <name>" heading carry that label; sub-items ("1.1 text")
// reference their parent in the description.
func parseMarkdownIssues(content string) []llm.ExtractedIssue {
	var issues []llm.ExtractedIssue
	currentLabel := ""
	parentTitle := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "## ") {
			heading := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			currentLabel = ""
			if strings.HasPrefix(strings.ToLower(heading), "label ") {
				currentLabel = strings.TrimSpace(heading[6:])
			}
			parentTitle = ""
			continue
		}

		if subTitle, ok := parseSubIssueNumber(line); ok {
			e := extractedFromTitle(subTitle, currentLabel)
			if parentTitle != "" {
				e.Description = "Part of: " + parentTitle
			}
			issues = append(issues, e)
			continue
		}

		title, numbered := listItemTitle(line)
		if title == "" {
			continue
		}
		// Only numbered items can be parents for sub-issues
		if numbered {
			parentTitle = title
		}
		issues = append(issues, extractedFromTitle(title, currentLabel))
	}

	return issues
}

func extractedFromTitle(title, headingLabel string) llm.ExtractedIssue {
	e := llm.ExtractedIssue{
		Title:    title,
		Priority: string(classifyIssuePriority(title)),
	}
	if headingLabel != "" {
		e.Labels = append(e.Labels, headingLabel)
	}
	if l := classifyIssueLabel(title); l != "" && !strings.EqualFold(l, headingLabel) {
		e.Labels = append(e.Labels, l)
	}
	return e
}

// createExtractedIssues stores extracted issues, skipping titles that already
// exist. Unknown priorities become medium and unknown label names are dropped.
func createExtractedIssues(ctx context.Context, s store.Store, extracted []llm.ExtractedIssue) error {
	existing, err := s.ListIssues(ctx)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	labels, err := s.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, issue := range existing {
		seen[titleKey(issue.Title)] = true
	}

	created, duplicates, failed := 0, 0, 0
	for _, e := range extracted {
		key := titleKey(e.Title)
		if seen[key] {
			ui.VerboseLog("Skipping existing issue %q", e.Title)
			duplicates++
			continue
		}

		priority := models.IssuePriority(strings.ToLower(e.Priority))
		if !priority.Valid() {
			priority = models.IssuePriorityMedium
		}

		issue := &models.Issue{
			Title:       e.Title,
			Description: e.Description,
			Status:      models.IssueStatusOpen,
			Priority:    priority,
			LabelIDs:    llm.ResolveLabels(e.Labels, labels),
		}
		if _, err := s.CreateIssue(ctx, issue); err != nil {
			ui.Warning("Failed to create issue %q: %v", e.Title, err)
			failed++
			continue
		}
		seen[key] = true
		created++
	}

	ui.Success("Created %d issues", created)
	if duplicates > 0 {
		ui.Info("Skipped %d existing issues", duplicates)
	}
	if failed > 0 {
		ui.Warning("Failed to create %d issues", failed)
	}
	return nil
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
