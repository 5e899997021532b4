package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/trackflow/internal/analytics"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// brokenStore fails every issue listing.
type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) ListIssues(context.Context) ([]*models.Issue, error) {
	return nil, errors.New("disk on fire")
}

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return NewServer(ms, analytics.NewAggregator(7)), ms
}

// callToolReq builds a CallToolRequest with the given tool name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// seedBoard adds two users, two labels and three issues.
func seedBoard(t *testing.T, ms *store.MemoryStore) []*models.Issue {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"Ada", "Grace"} {
		_, err := ms.CreateUser(ctx, &models.User{Name: name})
		require.NoError(t, err)
	}
	for _, name := range []string{"bug", "ui"} {
		_, err := ms.CreateLabel(ctx, &models.Label{Name: name})
		require.NoError(t, err)
	}

	var out []*models.Issue
	for _, in := range []*models.Issue{
		{ID: "01HAAA0000", Title: "Login fails", Priority: models.IssuePriorityCritical, Assignee: "1", LabelIDs: []int64{1}},
		{ID: "01HBBB0000", Title: "Dark mode", Status: models.IssueStatusInProgress, Assignee: "2", LabelIDs: []int64{2}},
		{ID: "01HCCC0000", Title: "Update docs", Status: models.IssueStatusClosed, Priority: models.IssuePriorityLow},
	} {
		created, err := ms.CreateIssue(ctx, in)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

// ---------------------------------------------------------------------------
// Tests: tf_list_issues
// ---------------------------------------------------------------------------

func TestListIssues_All(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleListIssues(context.Background(), callToolReq("tf_list_issues", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var issues []models.Issue
	resultJSON(t, result, &issues)
	assert.Len(t, issues, 3)
}

func TestListIssues_FilterAndSort(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleListIssues(context.Background(), callToolReq("tf_list_issues", map[string]any{
		"sort":      "priority",
		"direction": "desc",
	}))
	require.NoError(t, err)
	var issues []models.Issue
	resultJSON(t, result, &issues)
	require.Len(t, issues, 3)
	assert.Equal(t, "Login fails", issues[0].Title)
	assert.Equal(t, "Update docs", issues[2].Title)

	result, err = srv.handleListIssues(context.Background(), callToolReq("tf_list_issues", map[string]any{
		"assignee": "grace",
	}))
	require.NoError(t, err)
	issues = nil
	resultJSON(t, result, &issues)
	require.Len(t, issues, 1)
	assert.Equal(t, "Dark mode", issues[0].Title)

	result, err = srv.handleListIssues(context.Background(), callToolReq("tf_list_issues", map[string]any{
		"status": "closed",
		"search": "DOCS",
	}))
	require.NoError(t, err)
	issues = nil
	resultJSON(t, result, &issues)
	require.Len(t, issues, 1)
	assert.Equal(t, "01HCCC0000", issues[0].ID)
}

func TestListIssues_BadArguments(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"sort key", map[string]any{"sort": "colour"}, "invalid sort key"},
		{"direction", map[string]any{"direction": "sideways"}, "invalid sort direction"},
		{"assignee", map[string]any{"assignee": "nobody"}, "unknown user"},
		{"status", map[string]any{"status": "done"}, "invalid status: done"},
		{"priority", map[string]any{"priority": "urgent"}, "invalid priority: urgent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleListIssues(context.Background(), callToolReq("tf_list_issues", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestListIssues_StoreError(t *testing.T) {
	srv := NewServer(brokenStore{store.NewMemoryStore()}, nil)

	result, err := srv.handleListIssues(context.Background(), callToolReq("tf_list_issues", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "disk on fire")
}

// ---------------------------------------------------------------------------
// Tests: tf_get_issue
// ---------------------------------------------------------------------------

func TestGetIssue_Prefix(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleGetIssue(context.Background(), callToolReq("tf_get_issue", map[string]any{
		"issue_id": "01hb",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.Equal(t, "Dark mode", issue.Title)
}

func TestGetIssue_Ambiguous(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleGetIssue(context.Background(), callToolReq("tf_get_issue", map[string]any{
		"issue_id": "01H",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "ambiguous issue ID 01H: matches 3 issues")
}

func TestGetIssue_MissingParam(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetIssue(context.Background(), callToolReq("tf_get_issue", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "issue_id")
}

// ---------------------------------------------------------------------------
// Tests: tf_create_issue
// ---------------------------------------------------------------------------

func TestCreateIssue_Success(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("tf_create_issue", map[string]any{
		"title":    "Export to CSV",
		"priority": "high",
		"assignee": "Ada",
		"labels":   "ui, bug",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, "Export to CSV", issue.Title)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, models.IssuePriorityHigh, issue.Priority)
	assert.Equal(t, "1", issue.Assignee)
	assert.Equal(t, []int64{2, 1}, issue.LabelIDs)

	stored, err := ms.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Export to CSV", stored.Title)
}

func TestCreateIssue_Errors(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing title", map[string]any{}, "missing required parameter: title"},
		{"blank title", map[string]any{"title": "   "}, "title is required"},
		{"bad priority", map[string]any{"title": "x", "priority": "urgent"}, "invalid priority"},
		{"unknown label", map[string]any{"title": "x", "labels": "docs"}, "unknown label: docs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleCreateIssue(context.Background(), callToolReq("tf_create_issue", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}

	issues, err := ms.ListIssues(context.Background())
	require.NoError(t, err)
	assert.Len(t, issues, 3, "failed creates store nothing")
}

// ---------------------------------------------------------------------------
// Tests: tf_update_issue
// ---------------------------------------------------------------------------

func TestUpdateIssue_Success(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleUpdateIssue(context.Background(), callToolReq("tf_update_issue", map[string]any{
		"issue_id": "01HAAA",
		"status":   "review",
		"assignee": "none",
		"labels":   "none",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.Equal(t, "01HAAA0000", issue.ID)
	assert.Equal(t, models.IssueStatusReview, issue.Status)
	assert.Equal(t, models.IssuePriorityCritical, issue.Priority)
	assert.Equal(t, "", issue.Assignee)
	assert.Empty(t, issue.LabelIDs)
}

func TestUpdateIssue_NoFields(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleUpdateIssue(context.Background(), callToolReq("tf_update_issue", map[string]any{
		"issue_id": "01HAAA0000",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no fields provided")
}

func TestUpdateIssue_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleUpdateIssue(context.Background(), callToolReq("tf_update_issue", map[string]any{
		"issue_id": "nonexistent",
		"title":    "x",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "issue not found")
}

// ---------------------------------------------------------------------------
// Tests: tf_move_issue / tf_delete_issue
// ---------------------------------------------------------------------------

func TestMoveIssue(t *testing.T) {
	srv, ms := newTestServer(t)
	issues := seedBoard(t, ms)

	result, err := srv.handleMoveIssue(context.Background(), callToolReq("tf_move_issue", map[string]any{
		"issue_id": "01HBBB",
		"status":   "closed",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	stored, err := ms.GetIssue(context.Background(), issues[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusClosed, stored.Status)

	result, err = srv.handleMoveIssue(context.Background(), callToolReq("tf_move_issue", map[string]any{
		"issue_id": "01HBBB",
		"status":   "done",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid status: done")
}

func TestMoveIssue_SameStatusIsNoop(t *testing.T) {
	srv, ms := newTestServer(t)
	issues := seedBoard(t, ms)

	result, err := srv.handleMoveIssue(context.Background(), callToolReq("tf_move_issue", map[string]any{
		"issue_id": issues[2].ID,
		"status":   "closed",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	stored, err := ms.GetIssue(context.Background(), issues[2].ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(issues[2].UpdatedAt))
}

func TestDeleteIssue(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleDeleteIssue(context.Background(), callToolReq("tf_delete_issue", map[string]any{
		"issue_id": "01HCCC",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "01HCCC0000", out["id"])
	assert.Equal(t, true, out["deleted"])

	_, err = ms.GetIssue(context.Background(), "01HCCC0000")
	assert.True(t, models.IsNotFound(err))

	result, err = srv.handleDeleteIssue(context.Background(), callToolReq("tf_delete_issue", map[string]any{
		"issue_id": "01HCCC",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: users, labels, analytics
// ---------------------------------------------------------------------------

func TestListUsersAndLabels(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleListUsers(context.Background(), callToolReq("tf_list_users", nil))
	require.NoError(t, err)
	var users []models.User
	resultJSON(t, result, &users)
	require.Len(t, users, 2)
	assert.Equal(t, "Ada", users[0].Name)

	result, err = srv.handleListLabels(context.Background(), callToolReq("tf_list_labels", nil))
	require.NoError(t, err)
	var labels []models.Label
	resultJSON(t, result, &labels)
	require.Len(t, labels, 2)
	assert.Equal(t, "ui", labels[1].Name)
}

func TestAnalytics(t *testing.T) {
	srv, ms := newTestServer(t)
	seedBoard(t, ms)

	result, err := srv.handleAnalytics(context.Background(), callToolReq("tf_analytics", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var summary analytics.Summary
	resultJSON(t, result, &summary)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.ByStatus[models.IssueStatusClosed])
	assert.Equal(t, 1, summary.ByPriority[models.IssuePriorityCritical])
	assert.Equal(t, 3, summary.Recent)
	assert.Equal(t, 7, summary.RecentDays)
	assert.Len(t, summary.Users, 2)
}

func TestAnalytics_DescribesCreationWindow(t *testing.T) {
	srv, _ := newTestServer(t)
	tool, _ := srv.analyticsTool()
	assert.Contains(t, tool.Description, "created within the recent window")
	assert.NotContains(t, tool.Description, "updated")
}

// ---------------------------------------------------------------------------
// Tests: Integration -- verify all tools are registered via HandleMessage
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv, _ := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	// Call tools/list via HandleMessage to verify registration.
	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	err = json.Unmarshal(respBytes, &rpcResp)
	require.NoError(t, err)

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}

	expectedTools := []string{
		"tf_list_issues",
		"tf_get_issue",
		"tf_create_issue",
		"tf_update_issue",
		"tf_move_issue",
		"tf_delete_issue",
		"tf_list_users",
		"tf_list_labels",
		"tf_analytics",
	}
	for _, name := range expectedTools {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
	assert.Len(t, rpcResp.Result.Tools, len(expectedTools))
}
