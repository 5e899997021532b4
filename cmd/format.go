package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/output"
	"github.com/joescharf/trackflow/internal/store"
)

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}

// names resolves user and label references for display.
type names struct {
	users  map[string]*models.User
	labels map[int64]*models.Label
}

func loadNames(ctx context.Context, s store.Store) (*names, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	labels, err := s.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return newNames(users, labels), nil
}

func newNames(users []*models.User, labels []*models.Label) *names {
	n := &names{
		users:  make(map[string]*models.User, len(users)),
		labels: make(map[int64]*models.Label, len(labels)),
	}
	for _, u := range users {
		n.users[u.Ref()] = u
	}
	for _, l := range labels {
		n.labels[l.ID] = l
	}
	return n
}

// user renders an assignee: the user's name, "Unassigned", or the raw
// reference when the user no longer exists.
func (n *names) user(ref string) string {
	if ref == "" {
		return "Unassigned"
	}
	if u, ok := n.users[ref]; ok {
		return u.Name
	}
	return "#" + ref
}

// labelNames renders label IDs as names, skipping deleted labels.
func (n *names) labelNames(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if l, ok := n.labels[id]; ok {
			out = append(out, l.Name)
		}
	}
	return out
}

func (n *names) labelList(ids []int64) string {
	return strings.Join(n.labelNames(ids), ", ")
}

// labelSwatches renders labels with their colour.
func (n *names) labelSwatches(ids []int64) string {
	var parts []string
	for _, id := range ids {
		if l, ok := n.labels[id]; ok {
			parts = append(parts, output.Swatch(l.Color)+" "+l.Name)
		}
	}
	return strings.Join(parts, "  ")
}
