package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/trackflow/internal/models"
)

// Store defines the data access contract for trackflow. Implementations assign
// IDs and timestamps on create, merge only the provided fields on update and
// return *models.NotFoundError for unknown IDs.
type Store interface {
	// Issues
	ListIssues(ctx context.Context) ([]*models.Issue, error)
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	CreateIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error)
	UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error)
	DeleteIssue(ctx context.Context, id string) error

	// Users
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error

	// Labels
	ListLabels(ctx context.Context) ([]*models.Label, error)
	GetLabel(ctx context.Context, id int64) (*models.Label, error)
	CreateLabel(ctx context.Context, label *models.Label) (*models.Label, error)
	UpdateLabel(ctx context.Context, id int64, patch models.LabelPatch) (*models.Label, error)
	DeleteLabel(ctx context.Context, id int64) error

	// Lifecycle
	Close() error
}

// prepareIssue applies defaults and validates an issue before it is stored.
func prepareIssue(issue *models.Issue) error {
	issue.ApplyDefaults()
	return issue.Validate()
}

func prepareUser(user *models.User) error {
	user.ApplyDefaults()
	return user.Validate()
}

func prepareLabel(label *models.Label) error {
	label.ApplyDefaults()
	return label.Validate()
}

// FindIssue resolves an issue by full ID or unique, case-insensitive ID prefix.
func FindIssue(ctx context.Context, s Store, id string) (*models.Issue, error) {
	// Try exact match first
	issue, err := s.GetIssue(ctx, id)
	if err == nil {
		return issue, nil
	}
	if !models.IsNotFound(err) {
		return nil, err
	}

	// Try prefix match - list all and filter
	upper := strings.ToUpper(id)
	issues, err := s.ListIssues(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if strings.HasPrefix(strings.ToUpper(issue.ID), upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &models.NotFoundError{Entity: "issue", ID: id}
	case 1:
		return matches[0], nil
	default:
		return nil, &models.FieldError{Field: "id", Msg: fmt.Sprintf("ambiguous issue ID %s: matches %d issues", id, len(matches))}
	}
}
