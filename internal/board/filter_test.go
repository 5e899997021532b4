package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/trackflow/internal/models"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func sampleIssues() []*models.Issue {
	return []*models.Issue{
		{ID: "01A", Title: "Fix login bug", Description: "Login flow broken", Status: models.IssueStatusOpen,
			Priority: models.IssuePriorityHigh, Assignee: "1", CreatedAt: baseTime, UpdatedAt: baseTime.Add(3 * time.Hour)},
		{ID: "01B", Title: "Add CSV export", Status: models.IssueStatusInProgress,
			Priority: models.IssuePriorityMedium, Assignee: "2", CreatedAt: baseTime.Add(time.Hour), UpdatedAt: baseTime.Add(time.Hour)},
		{ID: "01C", Title: "Dark mode", Status: models.IssueStatusClosed,
			Priority: models.IssuePriorityLow, Assignee: "1", CreatedAt: baseTime.Add(2 * time.Hour), UpdatedAt: baseTime.Add(5 * time.Hour)},
		{ID: "01D", Title: "Crash on save", Status: models.IssueStatusReview,
			Priority: models.IssuePriorityCritical, CreatedAt: baseTime.Add(3 * time.Hour), UpdatedAt: baseTime.Add(4 * time.Hour)},
		{ID: "01E", Title: "Billing typo", Status: models.IssueStatusOpen,
			Priority: models.IssuePriorityHigh, Assignee: "2", CreatedAt: baseTime.Add(4 * time.Hour), UpdatedAt: baseTime.Add(4 * time.Hour)},
	}
}

func ids(issues []*models.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.ID
	}
	return out
}

func TestFilter_EmptyCriteriaMatchesAll(t *testing.T) {
	issues := sampleIssues()
	assert.Equal(t, ids(issues), ids(Filter(issues, Criteria{})))
	assert.True(t, Criteria{}.IsZero())
}

func TestFilter_Criteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{"status", Criteria{Status: models.IssueStatusOpen}, []string{"01A", "01E"}},
		{"priority", Criteria{Priority: models.IssuePriorityHigh}, []string{"01A", "01E"}},
		{"assignee", Criteria{Assignee: "1"}, []string{"01A", "01C"}},
		{"combined", Criteria{Status: models.IssueStatusOpen, Assignee: "2"}, []string{"01E"}},
		{"search title", Criteria{Search: "DARK"}, []string{"01C"}},
		{"search description", Criteria{Search: "login"}, []string{"01A"}},
		{"search id", Criteria{Search: "01d"}, []string{"01D"}},
		{"unknown assignee", Criteria{Assignee: "99"}, []string{}},
		{"no match", Criteria{Search: "nothing like this"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(sampleIssues(), tt.criteria)))
		})
	}
}

func TestFilter_SubsetSatisfiesCriteria(t *testing.T) {
	issues := sampleIssues()
	all := map[string]bool{}
	for _, i := range issues {
		all[i.ID] = true
	}

	criteria := []Criteria{
		{Status: models.IssueStatusOpen},
		{Priority: models.IssuePriorityLow, Search: "mode"},
		{Assignee: "2", Search: "a"},
		{Search: "o"},
	}
	for _, c := range criteria {
		got := Filter(issues, c)
		assert.LessOrEqual(t, len(got), len(issues))
		for _, issue := range got {
			assert.True(t, all[issue.ID], "result must come from the input")
			assert.True(t, c.Match(issue))
		}
	}
}

func TestFilter_SearchMatchesDescriptionCaseInsensitive(t *testing.T) {
	issues := []*models.Issue{{ID: "x", Title: "Auth", Description: "Login flow broken"}}
	got := Filter(issues, Criteria{Search: "login"})
	assert.Len(t, got, 1)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	issues := sampleIssues()
	before := ids(issues)
	_ = Filter(issues, Criteria{Status: models.IssueStatusClosed})
	assert.Equal(t, before, ids(issues))
}

func TestCriteria_Validate(t *testing.T) {
	assert.NoError(t, Criteria{}.Validate())
	assert.NoError(t, Criteria{Status: models.IssueStatusReview, Priority: models.IssuePriorityCritical}.Validate())

	err := Criteria{Status: "done"}.Validate()
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	assert.Contains(t, err.Error(), "invalid status: done")

	err = Criteria{Priority: "urgent"}.Validate()
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	assert.Contains(t, err.Error(), "invalid priority: urgent")
}
