package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joescharf/trackflow/internal/models"
)

// ResolveUser maps a user reference (numeric ID or case-insensitive name) to
// the value Issue.Assignee holds. An empty reference means unassigned.
func ResolveUser(ctx context.Context, s Store, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("list users: %w", err)
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, u := range users {
			if u.ID == id {
				return u.Ref(), nil
			}
		}
	}
	for _, u := range users {
		if strings.EqualFold(u.Name, ref) {
			return u.Ref(), nil
		}
	}
	return "", &models.FieldError{Field: "assignee", Msg: "unknown user: " + ref}
}

// ResolveLabels maps label references (numeric IDs or case-insensitive names)
// to label IDs, dropping duplicates and keeping the given order.
func ResolveLabels(ctx context.Context, s Store, refs []string) ([]int64, error) {
	labels, err := s.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	ids := []int64{}
	seen := make(map[int64]bool)
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		l := matchLabel(labels, ref)
		if l == nil {
			return nil, &models.FieldError{Field: "labels", Msg: "unknown label: " + ref}
		}
		if !seen[l.ID] {
			seen[l.ID] = true
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

func matchLabel(labels []*models.Label, ref string) *models.Label {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, l := range labels {
			if l.ID == id {
				return l
			}
		}
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, ref) {
			return l
		}
	}
	return nil
}

// SplitList splits a comma-separated flag or argument value.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
