package cmd

import (
	"strings"

	"github.com/joescharf/trackflow/internal/models"
)

// classifyIssueLabel infers a label name from the title using keyword heuristics.
// Bug keywords are checked before docs keywords (e.g., "fix the docs build" = bug).
// Returns "" when nothing matches.
func classifyIssueLabel(title string) string {
	lower := strings.ToLower(title)

	bugPhrases := []string{
		"issue with", "not working", "doesn't work",
	}
	for _, kw := range bugPhrases {
		if strings.Contains(lower, kw) {
			return "bug"
		}
	}

	bugWords := []string{
		"fix ", "fix:", "fixed", "fixes", "fixing",
		"bug", "broken", "crash", "error",
		"regression", "fail", "fault", "defect",
	}
	for _, kw := range bugWords {
		if strings.Contains(lower, kw) {
			return "bug"
		}
	}
	// "fix" at end of string
	if strings.HasSuffix(lower, "fix") {
		return "bug"
	}

	docsKeywords := []string{
		"docs", "documentation", "readme", "changelog", "guide",
	}
	for _, kw := range docsKeywords {
		if strings.Contains(lower, kw) {
			return "docs"
		}
	}

	featureKeywords := []string{
		"add ", "support", "allow", "implement", "new ",
	}
	for _, kw := range featureKeywords {
		if strings.Contains(lower, kw) {
			return "feature"
		}
	}

	return ""
}

// classifyIssuePriority infers the issue priority from the title using keyword heuristics.
// Critical keywords are checked first, then high, then low. Defaults to medium.
func classifyIssuePriority(title string) models.IssuePriority {
	lower := strings.ToLower(title)

	criticalKeywords := []string{
		"critical", "blocker", "security", "data loss", "production down", "p0",
	}
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return models.IssuePriorityCritical
		}
	}

	highKeywords := []string{
		"urgent", "crash", "asap", "p1",
	}
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return models.IssuePriorityHigh
		}
	}

	lowKeywords := []string{
		"minor", "nice to have", "cosmetic", "trivial",
		"low priority", "cleanup", "clean up",
	}
	for _, kw := range lowKeywords {
		if strings.Contains(lower, kw) {
			return models.IssuePriorityLow
		}
	}

	return models.IssuePriorityMedium
}
