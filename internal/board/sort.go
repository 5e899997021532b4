package board

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joescharf/trackflow/internal/models"
)

// SortKey is an issue field the list view can be ordered by.
type SortKey string

const (
	SortByTitle     SortKey = "title"
	SortByStatus    SortKey = "status"
	SortByPriority  SortKey = "priority"
	SortByUpdatedAt SortKey = "updatedAt"
	SortByCreatedAt SortKey = "createdAt"
)

// SortKeys lists every supported key.
func SortKeys() []SortKey {
	return []SortKey{SortByTitle, SortByStatus, SortByPriority, SortByUpdatedAt, SortByCreatedAt}
}

// Direction is ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// ParseSortKey accepts a sort key case-insensitively. Snake case date keys
// (updated_at, created_at) are accepted as aliases.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "title":
		return SortByTitle, nil
	case "status":
		return SortByStatus, nil
	case "priority":
		return SortByPriority, nil
	case "updatedat", "updated_at", "updated":
		return SortByUpdatedAt, nil
	case "createdat", "created_at", "created":
		return SortByCreatedAt, nil
	}
	return "", &models.FieldError{Field: "sort", Msg: fmt.Sprintf("invalid sort key: %s", s)}
}

// ParseDirection accepts asc/ascending or desc/descending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Asc, nil
	case "desc", "descending":
		return Desc, nil
	}
	return "", &models.FieldError{Field: "direction", Msg: fmt.Sprintf("invalid sort direction: %s", s)}
}

// compare orders a and b ascending by key: negative, zero or positive.
func compare(a, b *models.Issue, key SortKey) int {
	switch key {
	case SortByTitle:
		return strings.Compare(a.Title, b.Title)
	case SortByStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case SortByPriority:
		return a.Priority.Rank() - b.Priority.Rank()
	case SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}

// Sort returns a new slice ordered by key and direction. Ties keep their
// relative order from the input. Unknown keys leave the order unchanged.
func Sort(issues []*models.Issue, key SortKey, dir Direction) []*models.Issue {
	out := make([]*models.Issue, len(issues))
	copy(out, issues)
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j], key)
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// Query combines filter criteria with a sort order.
type Query struct {
	Criteria
	Sort      SortKey   `json:"sort"`
	Direction Direction `json:"direction"`
}

// DefaultQuery shows everything, most recently updated first.
func DefaultQuery() Query {
	return Query{Sort: SortByUpdatedAt, Direction: Desc}
}

// Apply filters then sorts.
func Apply(issues []*models.Issue, q Query) []*models.Issue {
	return Sort(Filter(issues, q.Criteria), q.Sort, q.Direction)
}
