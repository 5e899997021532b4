package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/trackflow/internal/analytics"
	"github.com/joescharf/trackflow/internal/board"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

// Server wraps the trackflow data layer and exposes it as MCP tools.
type Server struct {
	store      store.Store
	aggregator *analytics.Aggregator
}

// NewServer creates the MCP server wrapper. A nil aggregator uses the
// default recent-activity window.
func NewServer(s store.Store, agg *analytics.Aggregator) *Server {
	if agg == nil {
		agg = analytics.NewAggregator(analytics.DefaultRecentDays)
	}
	return &Server{store: s, aggregator: agg}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("trackflow", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.moveIssueTool())
	srv.AddTool(s.deleteIssueTool())
	srv.AddTool(s.listUsersTool())
	srv.AddTool(s.listLabelsTool())
	srv.AddTool(s.analyticsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tf_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_list_issues",
		mcp.WithDescription("List issues, optionally filtered and sorted. Returns a JSON array of issues with id, title, description, status, priority, assignee (user ID), labelIds, createdAt and updatedAt."),
		mcp.WithString("status", mcp.Description("Status filter: open, in-progress, review, closed")),
		mcp.WithString("priority", mcp.Description("Priority filter: low, medium, high, critical")),
		mcp.WithString("assignee", mcp.Description("Assignee filter: user ID or name")),
		mcp.WithString("search", mcp.Description("Case-insensitive text matched against title, description and ID")),
		mcp.WithString("sort", mcp.Description("Sort key: title, status, priority, updatedAt, createdAt (default: updatedAt)")),
		mcp.WithString("direction", mcp.Description("Sort direction: asc or desc (default: desc)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := board.DefaultQuery()
	q.Status = models.IssueStatus(request.GetString("status", ""))
	q.Priority = models.IssuePriority(request.GetString("priority", ""))
	q.Search = request.GetString("search", "")
	if err := q.Criteria.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if assignee := request.GetString("assignee", ""); assignee != "" {
		ref, err := store.ResolveUser(ctx, s.store, assignee)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Assignee = ref
	}
	if key := request.GetString("sort", ""); key != "" {
		k, err := board.ParseSortKey(key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Sort = k
	}
	if dir := request.GetString("direction", ""); dir != "" {
		d, err := board.ParseDirection(dir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Direction = d
	}

	issues, err := s.store.ListIssues(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	return jsonResult(board.Apply(issues, q))
}

// tf_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_get_issue",
		mcp.WithDescription("Get a single issue by ID (full ULID or unique prefix). Returns the issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(issue)
}

// tf_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_create_issue",
		mcp.WithDescription("Create a new issue. Status defaults to open and priority to medium. Returns the created issue as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Issue description")),
		mcp.WithString("status", mcp.Description("Initial status: open, in-progress, review, closed")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high, critical")),
		mcp.WithString("assignee", mcp.Description("Assignee: user ID or name")),
		mcp.WithString("labels", mcp.Description("Comma-separated label names or IDs")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	issue := &models.Issue{
		Title:       title,
		Description: request.GetString("description", ""),
		Status:      models.IssueStatus(request.GetString("status", "")),
		Priority:    models.IssuePriority(request.GetString("priority", "")),
	}

	issue.Assignee, err = store.ResolveUser(ctx, s.store, request.GetString("assignee", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issue.LabelIDs, err = store.ResolveLabels(ctx, s.store, store.SplitList(request.GetString("labels", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	created, err := s.store.CreateIssue(ctx, issue)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}
	return jsonResult(created)
}

// tf_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_update_issue",
		mcp.WithDescription("Update an existing issue. Provide the issue ID (full or prefix) and at least one field to update. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status: open, in-progress, review, closed")),
		mcp.WithString("priority", mcp.Description("New priority: low, medium, high, critical")),
		mcp.WithString("assignee", mcp.Description("New assignee: user ID or name; \"none\" to unassign")),
		mcp.WithString("labels", mcp.Description("Replacement label set: comma-separated names or IDs; \"none\" to clear")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch models.IssuePatch
	if title := request.GetString("title", ""); title != "" {
		patch.Title = &title
	}
	if desc := request.GetString("description", ""); desc != "" {
		patch.Description = &desc
	}
	if status := request.GetString("status", ""); status != "" {
		st := models.IssueStatus(status)
		patch.Status = &st
	}
	if priority := request.GetString("priority", ""); priority != "" {
		p := models.IssuePriority(priority)
		patch.Priority = &p
	}
	if assignee := request.GetString("assignee", ""); assignee != "" {
		ref := ""
		if assignee != "none" {
			if ref, err = store.ResolveUser(ctx, s.store, assignee); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		patch.Assignee = &ref
	}
	if labels := request.GetString("labels", ""); labels != "" {
		ids := []int64{}
		if labels != "none" {
			if ids, err = store.ResolveLabels(ctx, s.store, store.SplitList(labels)); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		patch.LabelIDs = &ids
	}

	if patch.Empty() {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: title, description, status, priority, assignee, labels"), nil
	}

	updated, err := s.store.UpdateIssue(ctx, issue.ID, patch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}
	return jsonResult(updated)
}

// tf_move_issue
func (s *Server) moveIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_move_issue",
		mcp.WithDescription("Move an issue to another board column. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status: open, in-progress, review, closed")),
	)
	return tool, s.handleMoveIssue
}

func (s *Server) handleMoveIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}
	st := models.IssueStatus(status)
	if !st.Valid() {
		return mcp.NewToolResultError("invalid status: " + status), nil
	}

	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if issue.Status == st {
		return jsonResult(issue)
	}

	updated, err := s.store.UpdateIssue(ctx, issue.ID, models.IssuePatch{Status: &st})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to move issue: %v", err)), nil
	}
	return jsonResult(updated)
}

// tf_delete_issue
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_delete_issue",
		mcp.WithDescription("Permanently delete an issue."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.DeleteIssue(ctx, issue.ID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete issue: %v", err)), nil
	}
	return jsonResult(map[string]any{"id": issue.ID, "deleted": true})
}

// tf_list_users
func (s *Server) listUsersTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_list_users",
		mcp.WithDescription("List team members. Returns a JSON array of users with id, name, email and role. Issue assignees refer to these IDs."),
	)
	return tool, s.handleListUsers
}

func (s *Server) handleListUsers(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list users: %v", err)), nil
	}
	return jsonResult(users)
}

// tf_list_labels
func (s *Server) listLabelsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_list_labels",
		mcp.WithDescription("List labels. Returns a JSON array of labels with id, name, color and description."),
	)
	return tool, s.handleListLabels
}

func (s *Server) handleListLabels(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	labels, err := s.store.ListLabels(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list labels: %v", err)), nil
	}
	return jsonResult(labels)
}

// tf_analytics
func (s *Server) analyticsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tf_analytics",
		mcp.WithDescription("Summarise the board: totals by status and priority, the count of issues created within the recent window (recentDays, configured by analytics.recent_days), and per-user completion rates."),
	)
	return tool, s.handleAnalytics
}

func (s *Server) handleAnalytics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issues, err := s.store.ListIssues(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list users: %v", err)), nil
	}
	return jsonResult(s.aggregator.Compute(issues, users))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
