package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/trackflow/internal/llm"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/output"
	"github.com/joescharf/trackflow/internal/store"
)

func TestParseMarkdownIssues(t *testing.T) {
	t.Run("numbered list with label headings", func(t *testing.T) {
		md := `# Quick Issues

## Label frontend

1. Dashboard: clicking a card should open the issue
2. Add keyboard shortcuts

## Label backend

1. Fix login bug
`
		issues := parseMarkdownIssues(md)
		require.Len(t, issues, 3)

		assert.Equal(t, "Dashboard: clicking a card should open the issue", issues[0].Title)
		assert.Equal(t, []string{"frontend"}, issues[0].Labels)
		assert.Equal(t, "medium", issues[0].Priority)

		assert.Equal(t, []string{"frontend", "feature"}, issues[1].Labels)

		assert.Equal(t, "Fix login bug", issues[2].Title)
		assert.Equal(t, []string{"backend", "bug"}, issues[2].Labels)
	})

	t.Run("classification through parser", func(t *testing.T) {
		md := `1. Fix critical crash on startup
2. Add dark mode support
3. Minor cosmetic button fix
`
		issues := parseMarkdownIssues(md)
		require.Len(t, issues, 3)

		assert.Equal(t, []string{"bug"}, issues[0].Labels)
		assert.Equal(t, "critical", issues[0].Priority)

		assert.Equal(t, []string{"feature"}, issues[1].Labels)
		assert.Equal(t, "medium", issues[1].Priority)

		assert.Equal(t, []string{"bug"}, issues[2].Labels)
		assert.Equal(t, "low", issues[2].Priority)
	})

	t.Run("bulleted list", func(t *testing.T) {
		md := `- Item one
- Item two
* Item three
`
		issues := parseMarkdownIssues(md)
		require.Len(t, issues, 3)
		assert.Equal(t, "Item one", issues[0].Title)
		assert.Equal(t, "Item two", issues[1].Title)
		assert.Equal(t, "Item three", issues[2].Title)
		assert.Empty(t, issues[0].Labels)
	})

	t.Run("other headings clear the label", func(t *testing.T) {
		md := `## Label docs

1. Write the setup section

## Backlog

1. Polish the board
`
		issues := parseMarkdownIssues(md)
		require.Len(t, issues, 2)
		assert.Equal(t, []string{"docs"}, issues[0].Labels)
		assert.Empty(t, issues[1].Labels)
	})

	t.Run("sub-issues reference their parent", func(t *testing.T) {
		md := `1. Authentication system
1.1 Add login form
1.2. Add password reset

2. Database improvements
2.1 Connection pooling
- Loose bullet
2.2 Query timeouts
`
		issues := parseMarkdownIssues(md)
		require.Len(t, issues, 7)

		assert.Equal(t, "Authentication system", issues[0].Title)
		assert.Equal(t, "", issues[0].Description)

		assert.Equal(t, "Add login form", issues[1].Title)
		assert.Equal(t, "Part of: Authentication system", issues[1].Description)
		assert.Equal(t, "Add password reset", issues[2].Title)
		assert.Equal(t, "Part of: Authentication system", issues[2].Description)

		assert.Equal(t, "Part of: Database improvements", issues[4].Description)
		assert.Equal(t, "Loose bullet", issues[5].Title)
		assert.Equal(t, "Part of: Database improvements", issues[6].Description, "bullets are never parents")
	})

	t.Run("sub-issue without parent is standalone", func(t *testing.T) {
		issues := parseMarkdownIssues("1.1 Orphan sub-issue\n")
		require.Len(t, issues, 1)
		assert.Equal(t, "Orphan sub-issue", issues[0].Title)
		assert.Equal(t, "", issues[0].Description)
	})

	t.Run("empty file", func(t *testing.T) {
		assert.Empty(t, parseMarkdownIssues(""))
	})

	t.Run("no list items", func(t *testing.T) {
		md := `# Just a heading

Some paragraph text without any list items.
`
		assert.Empty(t, parseMarkdownIssues(md))
	})
}

func TestParseSubIssueNumber(t *testing.T) {
	tests := []struct {
		line  string
		title string
		ok    bool
	}{
		{"1.1 Text", "Text", true},
		{"12.3. Text", "Text", true},
		{"1. Text", "", false},
		{"1.1", "", false},
		{"1.1Text", "", false},
		{"a.1 Text", "", false},
		{"1.1    ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			title, ok := parseSubIssueNumber(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.title, title)
		})
	}
}

// setupTestStore creates a temp SQLite store with labels for import tests.
func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	// Initialize the cmd-level ui so createExtractedIssues can use it
	ui = output.New()

	for _, name := range []string{"bug", "feature"} {
		_, err := s.CreateLabel(context.Background(), &models.Label{Name: name})
		require.NoError(t, err)
	}
	return s
}

func TestCreateExtractedIssues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	extracted := []llm.ExtractedIssue{
		{Title: "Issue A", Priority: "HIGH", Labels: []string{"Bug", "unknown"}},
		{Title: "Issue B", Priority: "urgent"},
		{Title: "  "},
	}
	require.NoError(t, createExtractedIssues(ctx, s, extracted))

	issues, err := s.ListIssues(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 2, "blank titles fail validation and are skipped")

	byTitle := map[string]*models.Issue{}
	for _, issue := range issues {
		byTitle[issue.Title] = issue
	}
	assert.Equal(t, models.IssuePriorityHigh, byTitle["Issue A"].Priority)
	assert.Equal(t, []int64{1}, byTitle["Issue A"].LabelIDs)
	assert.Equal(t, models.IssuePriorityMedium, byTitle["Issue B"].Priority)
	assert.Equal(t, models.IssueStatusOpen, byTitle["Issue B"].Status)
}

func TestCreateExtractedIssues_Idempotent(t *testing.T) {
	t.Run("second import creates no duplicates", func(t *testing.T) {
		s := setupTestStore(t)
		ctx := context.Background()

		extracted := []llm.ExtractedIssue{
			{Title: "Issue A", Priority: "medium"},
			{Title: "Issue B", Priority: "high"},
		}
		require.NoError(t, createExtractedIssues(ctx, s, extracted))
		require.NoError(t, createExtractedIssues(ctx, s, extracted))

		issues, err := s.ListIssues(ctx)
		require.NoError(t, err)
		assert.Len(t, issues, 2, "should not create duplicates")
	})

	t.Run("mixed import creates only new issues", func(t *testing.T) {
		s := setupTestStore(t)
		ctx := context.Background()

		batch1 := []llm.ExtractedIssue{
			{Title: "Existing A"},
			{Title: "Existing B"},
		}
		require.NoError(t, createExtractedIssues(ctx, s, batch1))

		batch2 := []llm.ExtractedIssue{
			{Title: "existing a "},
			{Title: "New C"},
			{Title: "Existing B"},
			{Title: "New D"},
			{Title: "New D"},
		}
		require.NoError(t, createExtractedIssues(ctx, s, batch2))

		issues, err := s.ListIssues(ctx)
		require.NoError(t, err)
		assert.Len(t, issues, 4, "should have 2 original + 2 new")
	})
}

func TestIssueImportRun_Offline(t *testing.T) {
	dir := testEnv(t)
	captureOutput(t)
	useMemoryBackend(t)

	md := filepath.Join(dir, "issues.md")
	require.NoError(t, os.WriteFile(md, []byte("## Label docs\n\n1. Write the setup guide\n2. Fix broken link checker\n"), 0o644))

	importOffline = true
	t.Cleanup(func() { importOffline = false })
	require.NoError(t, issueImportRun(md))

	s, err := getStore()
	require.NoError(t, err)
	issues, err := s.ListIssues(context.Background())
	require.NoError(t, err)
	titles := map[string]bool{}
	for _, issue := range issues {
		titles[issue.Title] = true
	}
	assert.True(t, titles["Write the setup guide"])
	assert.True(t, titles["Fix broken link checker"])
}

func TestIssueImportRun_EmptyFile(t *testing.T) {
	dir := testEnv(t)
	md := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(md, []byte("  \n"), 0o644))

	err := issueImportRun(md)
	assert.ErrorContains(t, err, "file is empty")
}
