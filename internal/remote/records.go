package remote

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/trackflow/internal/models"
)

// issueRecord is an issue as the record-store API returns it. Every field
// except the id may be absent; toModel states the default for each one.
type issueRecord struct {
	ID          json.RawMessage `json:"id"`
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	Assignee    json.RawMessage `json:"assignee"`
	LabelIDs    json.RawMessage `json:"labelIds"`
	CreatedAt   *time.Time      `json:"createdAt"`
	UpdatedAt   *time.Time      `json:"updatedAt"`
}

// toModel maps a record onto an Issue:
//   - id: string or number, rendered as a string
//   - title, description: "" when absent
//   - status: open when absent or unknown
//   - priority: medium when absent or unknown
//   - assignee: string or number user ID, or a lookup object {"Id": n};
//     "" when absent or null
//   - labelIds: array of numbers or numeric strings, or a comma-separated
//     string; empty set when absent; non-integer entries are skipped
//   - createdAt: zero when absent; updatedAt: createdAt when absent or earlier
func (r *issueRecord) toModel() *models.Issue {
	issue := &models.Issue{
		ID:       rawString(r.ID),
		Status:   models.IssueStatusOpen,
		Priority: models.IssuePriorityMedium,
		Assignee: rawString(r.Assignee),
		LabelIDs: labelIDs(r.LabelIDs),
	}
	if r.Title != nil {
		issue.Title = *r.Title
	}
	if r.Description != nil {
		issue.Description = *r.Description
	}
	if r.Status != nil {
		if st := models.IssueStatus(*r.Status); st.Valid() {
			issue.Status = st
		}
	}
	if r.Priority != nil {
		if p := models.IssuePriority(*r.Priority); p.Valid() {
			issue.Priority = p
		}
	}
	if r.CreatedAt != nil {
		issue.CreatedAt = *r.CreatedAt
	}
	issue.UpdatedAt = issue.CreatedAt
	if r.UpdatedAt != nil && r.UpdatedAt.After(issue.CreatedAt) {
		issue.UpdatedAt = *r.UpdatedAt
	}
	return issue
}

// userRecord is a user as the API returns it. encoding/json matches keys
// case-insensitively, so "Id" and "id" both decode.
type userRecord struct {
	ID     json.Number `json:"id"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Avatar string      `json:"avatar"`
	Role   string      `json:"role"`
}

// toModel maps a record onto a User. Unknown or absent roles become developer.
func (r *userRecord) toModel() *models.User {
	id, _ := r.ID.Int64()
	u := &models.User{
		ID:     id,
		Name:   r.Name,
		Email:  r.Email,
		Avatar: r.Avatar,
		Role:   models.UserRole(r.Role),
	}
	if !u.Role.Valid() {
		u.Role = models.UserRoleDeveloper
	}
	return u
}

// labelRecord is a label as the API returns it.
type labelRecord struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	Color       string      `json:"color"`
	Description string      `json:"description"`
}

// toModel maps a record onto a Label. An absent colour becomes the default.
func (r *labelRecord) toModel() *models.Label {
	id, _ := r.ID.Int64()
	l := &models.Label{
		ID:          id,
		Name:        r.Name,
		Color:       r.Color,
		Description: r.Description,
	}
	if l.Color == "" {
		l.Color = models.DefaultLabelColor
	}
	return l
}

// labelIDs decodes a labelIds value. Entries that are not integers are
// dropped rather than failing the record.
func labelIDs(raw json.RawMessage) []int64 {
	ids := []int64{}
	var parts []string

	var list []json.RawMessage
	var csv string
	switch {
	case json.Unmarshal(raw, &list) == nil:
		for _, item := range list {
			parts = append(parts, rawString(item))
		}
	case json.Unmarshal(raw, &csv) == nil:
		parts = strings.Split(csv, ",")
	default:
		return ids
	}

	for _, p := range parts {
		if id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// rawString renders a JSON string or number as a Go string. A lookup
// object renders its Id field. Null, absent and other JSON types render as "".
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, "{") {
		var ref struct {
			ID json.RawMessage `json:"Id"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil || strings.HasPrefix(strings.TrimSpace(string(ref.ID)), "{") {
			return ""
		}
		return rawString(ref.ID)
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
