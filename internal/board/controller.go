package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

// ErrLoadFailed is returned by Load when either collection could not be fetched.
var ErrLoadFailed = errors.New("failed to load")

// bulkConcurrency caps in-flight store calls during bulk updates.
const bulkConcurrency = 8

// Notifier receives user-visible confirmations and errors.
type Notifier interface {
	Success(format string, a ...any)
	Error(format string, a ...any)
}

// Column is one board column: every issue in the view with a given status.
type Column struct {
	Status models.IssueStatus `json:"status"`
	Title  string             `json:"title"`
	Count  int                `json:"count"`
	Issues []*models.Issue    `json:"issues"`
}

// Controller owns the cached issue and user collections, derives the filtered
// and sorted view, and routes mutations through the store. It is safe for
// concurrent use; the lock is never held across store calls.
type Controller struct {
	store  store.Store
	notify Notifier
	logger *slog.Logger

	mu       sync.Mutex
	issues   []*models.Issue
	users    []*models.User
	loaded   bool
	loadErr  error
	loadSeq  uint64
	query    Query
	selected map[string]bool
}

// NewController creates a Controller. A nil notifier or logger discards output.
func NewController(s store.Store, n Notifier, logger *slog.Logger) *Controller {
	if n == nil {
		n = nopNotifier{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		store:    s,
		notify:   n,
		logger:   logger,
		query:    DefaultQuery(),
		selected: make(map[string]bool),
	}
}

type nopNotifier struct{}

func (nopNotifier) Success(string, ...any) {}
func (nopNotifier) Error(string, ...any)   {}

// --- Loading ---

// Load fetches issues and users concurrently and replaces the cache. When
// several loads overlap only the most recently started one is applied. On
// failure the cache is left as it was and LoadErr reports the condition
// until the next successful load.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	var issues []*models.Issue
	var users []*models.User

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		issues, err = c.store.ListIssues(gctx)
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		users, err = c.store.ListUsers(gctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.loadSeq {
		c.logger.Debug("discarding stale load", "seq", seq, "latest", c.loadSeq)
		return nil
	}
	if err != nil {
		c.loadErr = fmt.Errorf("%w: %w", ErrLoadFailed, err)
		c.logger.Error("load failed", "error", err)
		return c.loadErr
	}

	c.issues = issues
	c.users = users
	c.loaded = true
	c.loadErr = nil
	c.pruneSelectionLocked()
	c.logger.Debug("loaded", "issues", len(issues), "users", len(users))
	return nil
}

// LoadErr returns the error of the last applied load, or nil.
func (c *Controller) LoadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Loaded reports whether a load has succeeded at least once.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// --- Mutations ---

// ChangeStatus moves an issue to another board column. Moving an issue to
// the column it already sits in does nothing.
func (c *Controller) ChangeStatus(ctx context.Context, id string, status models.IssueStatus) (*models.Issue, error) {
	if !status.Valid() {
		err := &models.FieldError{Field: "status", Msg: "invalid status: " + string(status)}
		c.notify.Error("Failed to move issue: %v", err)
		return nil, err
	}

	if cached := c.cached(id); cached != nil && cached.Status == status {
		return cached, nil
	}

	updated, err := c.store.UpdateIssue(ctx, id, models.IssuePatch{Status: &status})
	if err != nil {
		c.notify.Error("Failed to move issue: %v", err)
		return nil, fmt.Errorf("change status: %w", err)
	}
	c.reconcile(updated)
	c.notify.Success("Issue moved to %s", status.Title())
	return updated.Clone(), nil
}

// UpdateIssue applies a partial update and replaces the cached issue.
func (c *Controller) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := patch.Validate(); err != nil {
		c.notify.Error("Failed to update issue: %v", err)
		return nil, err
	}

	updated, err := c.store.UpdateIssue(ctx, id, patch)
	if err != nil {
		c.notify.Error("Failed to update issue: %v", err)
		return nil, fmt.Errorf("update issue: %w", err)
	}
	c.reconcile(updated)
	c.notify.Success("Issue updated successfully")
	return updated.Clone(), nil
}

// DeleteIssue removes an issue and drops it from the cache and selection.
func (c *Controller) DeleteIssue(ctx context.Context, id string) error {
	if err := c.store.DeleteIssue(ctx, id); err != nil {
		c.notify.Error("Failed to delete issue: %v", err)
		return fmt.Errorf("delete issue: %w", err)
	}

	c.mu.Lock()
	for i, issue := range c.issues {
		if issue.ID == id {
			c.issues = append(c.issues[:i:i], c.issues[i+1:]...)
			break
		}
	}
	delete(c.selected, id)
	c.mu.Unlock()

	c.notify.Success("Issue deleted successfully")
	return nil
}

// CreateIssue validates and stores a new issue and adds it to the cache.
func (c *Controller) CreateIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	candidate := issue.Clone()
	candidate.ApplyDefaults()
	if err := candidate.Validate(); err != nil {
		c.notify.Error("Failed to create issue: %v", err)
		return nil, err
	}

	created, err := c.store.CreateIssue(ctx, candidate)
	if err != nil {
		c.notify.Error("Failed to create issue: %v", err)
		return nil, fmt.Errorf("create issue: %w", err)
	}
	c.reconcile(created)
	c.notify.Success("Issue created successfully")
	return created.Clone(), nil
}

// BulkChangeStatus updates every issue concurrently, one store call each.
// The cache is reconciled only when all calls succeed; any failure fails the
// whole batch.
func (c *Controller) BulkChangeStatus(ctx context.Context, ids []string, status models.IssueStatus) ([]*models.Issue, error) {
	if !status.Valid() {
		err := &models.FieldError{Field: "status", Msg: "invalid status: " + string(status)}
		c.notify.Error("Failed to update issues: %v", err)
		return nil, err
	}
	if len(ids) == 0 {
		err := &models.FieldError{Field: "ids", Msg: "no issues selected"}
		c.notify.Error("Failed to update issues: %v", err)
		return nil, err
	}

	results := make([]*models.Issue, len(ids))
	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			updated, err := c.store.UpdateIssue(ctx, id, models.IssuePatch{Status: &status})
			if err != nil {
				return fmt.Errorf("update issue %s: %w", id, err)
			}
			results[i] = updated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.notify.Error("Failed to update issues")
		c.logger.Error("bulk status change failed", "status", status, "count", len(ids), "error", err)
		return nil, fmt.Errorf("bulk change status: %w", err)
	}

	for _, updated := range results {
		c.reconcile(updated)
	}
	c.notify.Success("%d issues updated successfully", len(ids))

	out := make([]*models.Issue, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return out, nil
}

// reconcile replaces the cached issue with the same ID, or appends it.
func (c *Controller) reconcile(issue *models.Issue) {
	stored := issue.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cached := range c.issues {
		if cached.ID == stored.ID {
			c.issues[i] = stored
			return
		}
	}
	c.issues = append(c.issues, stored)
}

func (c *Controller) cached(id string) *models.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, issue := range c.issues {
		if issue.ID == id {
			return issue.Clone()
		}
	}
	return nil
}

// --- Selection ---

// ToggleSelect flips the selection of one issue and reports whether it is
// now selected.
func (c *Controller) ToggleSelect(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected[id] {
		delete(c.selected, id)
		return false
	}
	c.selected[id] = true
	return true
}

// SelectAll selects every issue in the current view, or clears the
// selection when all of them are already selected.
func (c *Controller) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := Apply(c.issues, c.query)
	allSelected := len(view) > 0 && len(c.selected) == len(view)
	if allSelected {
		for _, issue := range view {
			if !c.selected[issue.ID] {
				allSelected = false
				break
			}
		}
	}

	c.selected = make(map[string]bool)
	if allSelected {
		return
	}
	for _, issue := range view {
		c.selected[issue.ID] = true
	}
}

// Selected returns the selected issue IDs in cache order.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.selected))
	for _, issue := range c.issues {
		if c.selected[issue.ID] {
			ids = append(ids, issue.ID)
		}
	}
	return ids
}

// ClearSelection deselects everything.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = make(map[string]bool)
}

// BulkChangeSelected applies BulkChangeStatus to the selection and clears
// it on success.
func (c *Controller) BulkChangeSelected(ctx context.Context, status models.IssueStatus) ([]*models.Issue, error) {
	updated, err := c.BulkChangeStatus(ctx, c.Selected(), status)
	if err != nil {
		return nil, err
	}
	c.ClearSelection()
	return updated, nil
}

func (c *Controller) pruneSelectionLocked() {
	present := make(map[string]bool, len(c.issues))
	for _, issue := range c.issues {
		present[issue.ID] = true
	}
	for id := range c.selected {
		if !present[id] {
			delete(c.selected, id)
		}
	}
}

// --- View state ---

// SetCriteria replaces the filter criteria.
func (c *Controller) SetCriteria(criteria Criteria) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Criteria = criteria
}

// ClearFilters resets every criterion, keeping the sort order.
func (c *Controller) ClearFilters() {
	c.SetCriteria(Criteria{})
}

// SetSort sets the sort key and direction.
func (c *Controller) SetSort(key SortKey, dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Sort = key
	c.query.Direction = dir
}

// ToggleSort flips the direction when key is already active, otherwise
// sorts ascending by key.
func (c *Controller) ToggleSort(key SortKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.query.Sort == key {
		c.query.Direction = c.query.Direction.Reverse()
		return
	}
	c.query.Sort = key
	c.query.Direction = Asc
}

// Query returns the active filter and sort settings.
func (c *Controller) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// View returns the filtered and sorted issues.
func (c *Controller) View() []*models.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneIssues(Apply(c.issues, c.query))
}

// Columns groups the view by status in board order.
func (c *Controller) Columns() []Column {
	return Columns(c.View())
}

// Columns groups issues by status in board order, keeping their order
// within each column.
func Columns(issues []*models.Issue) []Column {
	statuses := models.Statuses()
	cols := make([]Column, len(statuses))
	index := make(map[models.IssueStatus]int, len(statuses))
	for i, s := range statuses {
		cols[i] = Column{Status: s, Title: s.Title(), Issues: []*models.Issue{}}
		index[s] = i
	}
	for _, issue := range issues {
		if i, ok := index[issue.Status]; ok {
			cols[i].Issues = append(cols[i].Issues, issue)
			cols[i].Count++
		}
	}
	return cols
}

// Issues returns the full cached issue collection in store order.
func (c *Controller) Issues() []*models.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneIssues(c.issues)
}

// Users returns the cached users.
func (c *Controller) Users() []*models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.User, len(c.users))
	for i, u := range c.users {
		cp := *u
		out[i] = &cp
	}
	return out
}

func cloneIssues(issues []*models.Issue) []*models.Issue {
	out := make([]*models.Issue, len(issues))
	for i, issue := range issues {
		out[i] = issue.Clone()
	}
	return out
}
