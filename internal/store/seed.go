package store

import (
	"context"
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/trackflow/internal/models"
)

//go:embed seeds/demo.yaml
var seedsFS embed.FS

// Seed is a YAML document of users, labels and issues. Issues refer to users
// and labels by name since IDs are assigned by the target store.
type Seed struct {
	Users  []SeedUser  `yaml:"users"`
	Labels []SeedLabel `yaml:"labels"`
	Issues []SeedIssue `yaml:"issues"`
}

type SeedUser struct {
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Avatar string `yaml:"avatar"`
	Role   string `yaml:"role"`
}

type SeedLabel struct {
	Name        string `yaml:"name"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

type SeedIssue struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Status      string   `yaml:"status"`
	Priority    string   `yaml:"priority"`
	Assignee    string   `yaml:"assignee"`
	Labels      []string `yaml:"labels"`
}

// SeedResult counts the records created by ApplySeed.
type SeedResult struct {
	Users  int
	Labels int
	Issues int
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &seed, nil
}

// LoadSeed reads a seed document from disk.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

// DemoSeed returns the built-in demo data set.
func DemoSeed() (*Seed, error) {
	data, err := seedsFS.ReadFile("seeds/demo.yaml")
	if err != nil {
		return nil, fmt.Errorf("read demo seed: %w", err)
	}
	return ParseSeed(data)
}

// ApplySeed creates every record of the seed in s. Users and labels that
// already exist by name are reused rather than duplicated.
func ApplySeed(ctx context.Context, s Store, seed *Seed) (SeedResult, error) {
	var res SeedResult

	users, err := s.ListUsers(ctx)
	if err != nil {
		return res, err
	}
	userIDs := make(map[string]int64, len(users))
	for _, u := range users {
		userIDs[u.Name] = u.ID
	}

	labels, err := s.ListLabels(ctx)
	if err != nil {
		return res, err
	}
	labelIDs := make(map[string]int64, len(labels))
	for _, l := range labels {
		labelIDs[l.Name] = l.ID
	}

	for _, su := range seed.Users {
		if _, ok := userIDs[su.Name]; ok {
			continue
		}
		u, err := s.CreateUser(ctx, &models.User{
			Name:   su.Name,
			Email:  su.Email,
			Avatar: su.Avatar,
			Role:   models.UserRole(su.Role),
		})
		if err != nil {
			return res, fmt.Errorf("seed user %q: %w", su.Name, err)
		}
		userIDs[u.Name] = u.ID
		res.Users++
	}

	for _, sl := range seed.Labels {
		if _, ok := labelIDs[sl.Name]; ok {
			continue
		}
		l, err := s.CreateLabel(ctx, &models.Label{
			Name:        sl.Name,
			Color:       sl.Color,
			Description: sl.Description,
		})
		if err != nil {
			return res, fmt.Errorf("seed label %q: %w", sl.Name, err)
		}
		labelIDs[l.Name] = l.ID
		res.Labels++
	}

	for _, si := range seed.Issues {
		issue := &models.Issue{
			Title:       si.Title,
			Description: si.Description,
			Status:      models.IssueStatus(si.Status),
			Priority:    models.IssuePriority(si.Priority),
			LabelIDs:    []int64{},
		}
		if si.Assignee != "" {
			id, ok := userIDs[si.Assignee]
			if !ok {
				return res, fmt.Errorf("seed issue %q: unknown assignee %q", si.Title, si.Assignee)
			}
			issue.Assignee = models.UserRef(id)
		}
		for _, name := range si.Labels {
			id, ok := labelIDs[name]
			if !ok {
				return res, fmt.Errorf("seed issue %q: unknown label %q", si.Title, name)
			}
			issue.LabelIDs = append(issue.LabelIDs, id)
		}
		if _, err := s.CreateIssue(ctx, issue); err != nil {
			return res, fmt.Errorf("seed issue %q: %w", si.Title, err)
		}
		res.Issues++
	}

	return res, nil
}
