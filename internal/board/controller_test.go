package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

type recorder struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (r *recorder) Success(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, fmt.Sprintf(format, a...))
}

func (r *recorder) Error(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fmt.Sprintf(format, a...))
}

// flakyStore wraps a MemoryStore and can fail or block selected calls.
type flakyStore struct {
	*store.MemoryStore
	failList   bool
	failUpdate map[string]bool
	updates    int
	mu         sync.Mutex

	// When set, the next ListIssues reads its result, signals entered and
	// then blocks until gate is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *flakyStore) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	fail := f.failList
	f.mu.Unlock()

	if fail {
		return nil, errors.New("connection refused")
	}
	issues, err := f.MemoryStore.ListIssues(ctx)
	if gate != nil {
		f.entered <- struct{}{}
		<-gate
	}
	return issues, err
}

func (f *flakyStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	f.mu.Lock()
	f.updates++
	fail := f.failUpdate[id]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("upstream error")
	}
	return f.MemoryStore.UpdateIssue(ctx, id, patch)
}

func newTestController(t *testing.T) (*Controller, *flakyStore, *recorder) {
	t.Helper()
	fs := &flakyStore{MemoryStore: store.NewMemoryStore(), failUpdate: map[string]bool{}}
	rec := &recorder{}
	return NewController(fs, rec, nil), fs, rec
}

// seedIssues creates one issue per title with fixed IDs (id-0001, id-0002,
// ...) so text searches only ever match titles.
func seedIssues(t *testing.T, s store.Store, titles ...string) []*models.Issue {
	t.Helper()
	var out []*models.Issue
	for n, title := range titles {
		id := fmt.Sprintf("id-%04d", n+1)
		i, err := s.CreateIssue(context.Background(), &models.Issue{ID: id, Title: title})
		require.NoError(t, err)
		out = append(out, i)
	}
	return out
}

func TestController_Load(t *testing.T) {
	c, fs, _ := newTestController(t)
	ctx := context.Background()
	seedIssues(t, fs, "a", "b")
	_, err := fs.CreateUser(ctx, &models.User{Name: "Ada"})
	require.NoError(t, err)

	assert.False(t, c.Loaded())
	require.NoError(t, c.Load(ctx))
	assert.True(t, c.Loaded())
	assert.Len(t, c.Issues(), 2)
	assert.Len(t, c.Users(), 1)
	assert.NoError(t, c.LoadErr())
}

func TestController_LoadFailureKeepsCache(t *testing.T) {
	c, fs, _ := newTestController(t)
	ctx := context.Background()
	seedIssues(t, fs, "a")
	require.NoError(t, c.Load(ctx))

	fs.failList = true
	err := c.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, c.LoadErr(), ErrLoadFailed)
	assert.Len(t, c.Issues(), 1, "cache untouched on failure")

	// Manual retry recovers
	fs.failList = false
	require.NoError(t, c.Load(ctx))
	assert.NoError(t, c.LoadErr())
}

func TestController_StaleLoadDiscarded(t *testing.T) {
	c, fs, _ := newTestController(t)
	ctx := context.Background()
	seedIssues(t, fs, "a")

	gate := make(chan struct{})
	fs.gate = gate
	fs.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()

	// The first load has read one issue; a newer load then sees two
	<-fs.entered
	seedIssues(t, fs, "b")
	require.NoError(t, c.Load(ctx))
	assert.Len(t, c.Issues(), 2)

	close(gate)
	require.NoError(t, <-done)
	assert.Len(t, c.Issues(), 2, "older load must not overwrite newer result")
}

func TestController_ChangeStatus(t *testing.T) {
	c, fs, rec := newTestController(t)
	ctx := context.Background()
	issues := seedIssues(t, fs, "a")
	require.NoError(t, c.Load(ctx))

	updated, err := c.ChangeStatus(ctx, issues[0].ID, models.IssueStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, updated.Status)
	assert.Equal(t, issues[0].ID, updated.ID)
	assert.Equal(t, models.IssueStatusInProgress, c.Issues()[0].Status)
	assert.Equal(t, []string{"Issue moved to In Progress"}, rec.successes)
	assert.Equal(t, 1, fs.updates)
}

func TestController_ChangeStatusNoOp(t *testing.T) {
	c, fs, rec := newTestController(t)
	ctx := context.Background()
	issues := seedIssues(t, fs, "a")
	require.NoError(t, c.Load(ctx))

	got, err := c.ChangeStatus(ctx, issues[0].ID, models.IssueStatusOpen)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, got.Status)
	assert.Zero(t, fs.updates, "no store call when status is unchanged")
	assert.Empty(t, rec.successes)
}

func TestController_ChangeStatusErrors(t *testing.T) {
	c, fs, rec := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	_, err := c.ChangeStatus(ctx, "x", "done")
	assert.True(t, models.IsValidation(err))
	assert.Zero(t, fs.updates, "validation happens before any store call")

	_, err = c.ChangeStatus(ctx, "missing", models.IssueStatusClosed)
	assert.True(t, models.IsNotFound(err))
	assert.Len(t, rec.errors, 2)
}

func TestController_UpdateIssue(t *testing.T) {
	c, fs, rec := newTestController(t)
	ctx := context.Background()
	issues := seedIssues(t, fs, "a")
	require.NoError(t, c.Load(ctx))

	title := "renamed"
	updated, err := c.UpdateIssue(ctx, issues[0].ID, models.IssuePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, issues[0].ID, updated.ID)
	assert.False(t, updated.UpdatedAt.Before(issues[0].UpdatedAt))
	assert.Equal(t, "renamed", c.Issues()[0].Title)
	assert.Contains(t, rec.successes, "Issue updated successfully")

	empty := "  "
	_, err = c.UpdateIssue(ctx, issues[0].ID, models.IssuePatch{Title: &empty})
	assert.True(t, models.IsValidation(err))
	assert.Equal(t, 1, fs.updates)
}

func TestController_DeleteIssue(t *testing.T) {
	c, fs, rec := newTestController(t)
	ctx := context.Background()
	issues := seedIssues(t, fs, "a", "b")
	require.NoError(t, c.Load(ctx))
	c.ToggleSelect(issues[0].ID)

	require.NoError(t, c.DeleteIssue(ctx, issues[0].ID))
	assert.Equal(t, []string{issues[1].ID}, ids(c.Issues()))
	assert.Empty(t, c.Selected())
	assert.Contains(t, rec.successes, "Issue deleted successfully")

	err := c.DeleteIssue(ctx, issues[0].ID)
	assert.True(t, models.IsNotFound(err))
	assert.Len(t, rec.errors, 1)
}

func TestController_CreateIssueDefaults(t *testing.T) {
	c, _, rec := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	created, err := c.CreateIssue(ctx, &models.Issue{Title: "Fix login bug", Priority: models.IssuePriorityHigh, Assignee: ""})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, created.Status)
	assert.Equal(t, "", created.Description)
	assert.Equal(t, models.IssuePriorityHigh, created.Priority)
	assert.Len(t, c.Issues(), 1)
	assert.Contains(t, rec.successes, "Issue created successfully")

	_, err = c.CreateIssue(ctx, &models.Issue{})
	assert.True(t, models.IsValidation(err))
	assert.Len(t, c.Issues(), 1)
}

func TestController_BulkCloseThree(t *testing.T) {
	c, fs, rec := newTestController(t)
	ctx := context.Background()
	issues := seedIssues(t, fs, "a", "b", "c", "d")
	require.NoError(t, c.Load(ctx))

	for _, i := range issues[:3] {
		c.ToggleSelect(i.ID)
	}
	updated, err := c.BulkChangeSelected(ctx, models.IssueStatusClosed)
	require.NoError(t, err)
	assert.Len(t, updated, 3)

	byID := map[string]*models.Issue{}
	for _, i := range c.Issues() {
		byID[i.ID] = i
	}
	for _, i := range issues[:3] {
		assert.Equal(t, models.IssueStatusClosed, byID[i.ID].Status)
	}
	assert.Equal(t, models.IssueStatusOpen, byID[issues[3].ID].Status)
	assert.Empty(t, c.Selected(), "selection cleared after success")
	assert.Contains(t, rec.successes, "3 issues updated successfully")
}

func TestController_BulkFailureFailsBatch(t *testing.T) {
	c, fs, rec := newTestController(t)
	ctx := context.Background()
	issues := seedIssues(t, fs, "a", "b", "c")
	require.NoError(t, c.Load(ctx))
	fs.failUpdate[issues[1].ID] = true

	_, err := c.BulkChangeStatus(ctx, ids(issues), models.IssueStatusReview)
	require.Error(t, err)
	assert.Equal(t, 3, fs.updates, "every item is attempted")
	assert.Contains(t, rec.errors, "Failed to update issues")

	for _, i := range c.Issues() {
		assert.Equal(t, models.IssueStatusOpen, i.Status, "cache not reconciled on partial failure")
	}

	_, err = c.BulkChangeStatus(ctx, nil, models.IssueStatusReview)
	assert.True(t, models.IsValidation(err))
}

func TestController_SelectAllToggles(t *testing.T) {
	c, fs, _ := newTestController(t)
	ctx := context.Background()
	seedIssues(t, fs, "alpha", "beta", "gamma")
	require.NoError(t, c.Load(ctx))

	c.SetCriteria(Criteria{Search: "a"})
	c.SelectAll()
	assert.Len(t, c.Selected(), 3)

	c.SelectAll()
	assert.Empty(t, c.Selected())

	c.SetCriteria(Criteria{Search: "beta"})
	c.SelectAll()
	assert.Len(t, c.Selected(), 1)

	assert.False(t, c.ToggleSelect(c.Selected()[0]))
	assert.Empty(t, c.Selected())
}

func TestController_ViewAndSort(t *testing.T) {
	c, fs, _ := newTestController(t)
	ctx := context.Background()
	seedIssues(t, fs, "b", "a", "c")
	require.NoError(t, c.Load(ctx))

	assert.Equal(t, DefaultQuery(), c.Query())

	c.ToggleSort(SortByTitle)
	assert.Equal(t, Asc, c.Query().Direction)
	assert.Equal(t, []string{"a", "b", "c"}, titles(c.View()))

	c.ToggleSort(SortByTitle)
	assert.Equal(t, Desc, c.Query().Direction)
	assert.Equal(t, []string{"c", "b", "a"}, titles(c.View()))

	c.SetCriteria(Criteria{Search: "b"})
	assert.Equal(t, []string{"b"}, titles(c.View()))
	cols := c.Columns()
	assert.Equal(t, 1, cols[0].Count)

	c.ClearFilters()
	assert.Len(t, c.View(), 3)
	assert.Equal(t, SortByTitle, c.Query().Sort)

	c.SetCriteria(Criteria{Assignee: "42"})
	assert.Empty(t, c.View())
}

func TestController_SearchMatchesID(t *testing.T) {
	c, fs, _ := newTestController(t)
	ctx := context.Background()
	seedIssues(t, fs, "first", "second", "third")
	require.NoError(t, c.Load(ctx))

	c.SetCriteria(Criteria{Search: "ID-0002"})
	assert.Equal(t, []string{"second"}, titles(c.View()))

	c.SetCriteria(Criteria{Search: "0003"})
	assert.Equal(t, []string{"third"}, titles(c.View()))
}

func TestController_ViewReturnsCopies(t *testing.T) {
	c, fs, _ := newTestController(t)
	ctx := context.Background()
	seedIssues(t, fs, "a")
	require.NoError(t, c.Load(ctx))

	c.View()[0].Title = "mutated"
	assert.Equal(t, "a", c.Issues()[0].Title)
}

func titles(issues []*models.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Title
	}
	return out
}
