package board

import (
	"strings"

	"github.com/joescharf/trackflow/internal/models"
)

// Criteria narrows an issue list. Empty fields match everything.
type Criteria struct {
	Status   models.IssueStatus   `json:"status,omitempty"`
	Priority models.IssuePriority `json:"priority,omitempty"`
	Assignee string               `json:"assignee,omitempty"`
	Search   string               `json:"search,omitempty"`
}

// IsZero reports whether no criterion is set.
func (c Criteria) IsZero() bool {
	return c == Criteria{}
}

// Validate rejects status and priority values outside their enums. Empty
// criteria are valid.
func (c Criteria) Validate() error {
	if c.Status != "" && !c.Status.Valid() {
		return &models.FieldError{Field: "status", Msg: "invalid status: " + string(c.Status)}
	}
	if c.Priority != "" && !c.Priority.Valid() {
		return &models.FieldError{Field: "priority", Msg: "invalid priority: " + string(c.Priority)}
	}
	return nil
}

// Match reports whether the issue satisfies every non-empty criterion.
func (c Criteria) Match(issue *models.Issue) bool {
	if c.Status != "" && issue.Status != c.Status {
		return false
	}
	if c.Priority != "" && issue.Priority != c.Priority {
		return false
	}
	if c.Assignee != "" && issue.Assignee != c.Assignee {
		return false
	}
	if c.Search != "" {
		term := strings.ToLower(c.Search)
		if !strings.Contains(strings.ToLower(issue.Title), term) &&
			!strings.Contains(strings.ToLower(issue.Description), term) &&
			!strings.Contains(strings.ToLower(issue.ID), term) {
			return false
		}
	}
	return true
}

// Filter returns the issues matching c, in their original order. The input
// slice is not modified.
func Filter(issues []*models.Issue, c Criteria) []*models.Issue {
	out := make([]*models.Issue, 0, len(issues))
	for _, issue := range issues {
		if c.Match(issue) {
			out = append(out, issue)
		}
	}
	return out
}
