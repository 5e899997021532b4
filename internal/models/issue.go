package models

import (
	"strings"
	"time"
)

// IssueStatus represents the board column an issue sits in.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusReview     IssueStatus = "review"
	IssueStatusClosed     IssueStatus = "closed"
)

// Statuses returns all statuses in board column order.
func Statuses() []IssueStatus {
	return []IssueStatus{IssueStatusOpen, IssueStatusInProgress, IssueStatusReview, IssueStatusClosed}
}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusReview, IssueStatusClosed:
		return true
	}
	return false
}

// Title returns the human-readable column title for the status.
func (s IssueStatus) Title() string {
	switch s {
	case IssueStatusOpen:
		return "Open"
	case IssueStatusInProgress:
		return "In Progress"
	case IssueStatusReview:
		return "Review"
	case IssueStatusClosed:
		return "Closed"
	default:
		return string(s)
	}
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "low"
	IssuePriorityMedium   IssuePriority = "medium"
	IssuePriorityHigh     IssuePriority = "high"
	IssuePriorityCritical IssuePriority = "critical"
)

// Priorities returns all priorities from most to least urgent.
func Priorities() []IssuePriority {
	return []IssuePriority{IssuePriorityCritical, IssuePriorityHigh, IssuePriorityMedium, IssuePriorityLow}
}

// Valid reports whether p is one of the known priorities.
func (p IssuePriority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities: critical 4, high 3, medium 2, low 1. Unknown values rank 0.
func (p IssuePriority) Rank() int {
	switch p {
	case IssuePriorityCritical:
		return 4
	case IssuePriorityHigh:
		return 3
	case IssuePriorityMedium:
		return 2
	case IssuePriorityLow:
		return 1
	default:
		return 0
	}
}

// Issue is a trackable unit of work.
type Issue struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      IssueStatus   `json:"status"`
	Priority    IssuePriority `json:"priority"`
	Assignee    string        `json:"assignee"` // User ID in decimal form; "" = unassigned
	LabelIDs    []int64       `json:"labelIds"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ApplyDefaults fills absent fields: status open, priority medium, empty label set.
func (i *Issue) ApplyDefaults() {
	i.Title = strings.TrimSpace(i.Title)
	if i.Status == "" {
		i.Status = IssueStatusOpen
	}
	if i.Priority == "" {
		i.Priority = IssuePriorityMedium
	}
	if i.LabelIDs == nil {
		i.LabelIDs = []int64{}
	}
}

// Validate checks required fields and enumerations.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return &FieldError{Field: "title", Msg: "title is required"}
	}
	if !i.Status.Valid() {
		return &FieldError{Field: "status", Msg: "invalid status: " + string(i.Status)}
	}
	if !i.Priority.Valid() {
		return &FieldError{Field: "priority", Msg: "invalid priority: " + string(i.Priority)}
	}
	if err := validateUserRef(i.Assignee); err != nil {
		return err
	}
	return nil
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	c.LabelIDs = append([]int64{}, i.LabelIDs...)
	return &c
}

// HasLabel reports whether the issue references the given label.
func (i *Issue) HasLabel(id int64) bool {
	for _, l := range i.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// IssuePatch carries a partial update. Nil fields are left unchanged.
type IssuePatch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Status      *IssueStatus   `json:"status,omitempty"`
	Priority    *IssuePriority `json:"priority,omitempty"`
	Assignee    *string        `json:"assignee,omitempty"`
	LabelIDs    *[]int64       `json:"labelIds,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.Assignee == nil && p.LabelIDs == nil
}

// Validate checks the fields present in the patch.
func (p IssuePatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return &FieldError{Field: "title", Msg: "title is required"}
	}
	if p.Status != nil && !p.Status.Valid() {
		return &FieldError{Field: "status", Msg: "invalid status: " + string(*p.Status)}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return &FieldError{Field: "priority", Msg: "invalid priority: " + string(*p.Priority)}
	}
	if p.Assignee != nil {
		if err := validateUserRef(*p.Assignee); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the patch into the issue. It does not touch ID or timestamps.
func (p IssuePatch) Apply(i *Issue) {
	if p.Title != nil {
		i.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		i.Description = strings.TrimSpace(*p.Description)
	}
	if p.Status != nil {
		i.Status = *p.Status
	}
	if p.Priority != nil {
		i.Priority = *p.Priority
	}
	if p.Assignee != nil {
		i.Assignee = *p.Assignee
	}
	if p.LabelIDs != nil {
		i.LabelIDs = append([]int64{}, (*p.LabelIDs)...)
	}
}
