package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/trackflow/internal/api"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(api.NewServer(store.NewMemoryStore(), nil, nil, nil).Router())
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", time.Second)
	t.Cleanup(func() { c.Close() })
	return c
}

func ptr[T any](v T) *T { return &v }

func TestClient_IssueLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreateIssue(ctx, &models.Issue{Title: "Fix login bug", Priority: models.IssuePriorityHigh})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.IssueStatusOpen, created.Status)
	assert.Equal(t, "", created.Description)
	assert.Equal(t, []int64{}, created.LabelIDs)

	updated, err := c.UpdateIssue(ctx, created.ID, models.IssuePatch{Status: ptr(models.IssueStatusClosed)})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, models.IssueStatusClosed, updated.Status)
	assert.Equal(t, models.IssuePriorityHigh, updated.Priority)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	list, err := c.ListIssues(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.DeleteIssue(ctx, created.ID))
	_, err = c.GetIssue(ctx, created.ID)
	assert.True(t, models.IsNotFound(err))
	assert.EqualError(t, err, "issue not found: "+created.ID)
}

func TestClient_Errors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	// Validation fails locally before any request
	_, err := c.CreateIssue(ctx, &models.Issue{})
	assert.True(t, models.IsValidation(err))

	_, err = c.UpdateIssue(ctx, "missing", models.IssuePatch{Title: ptr("x")})
	assert.True(t, models.IsNotFound(err))

	assert.True(t, models.IsNotFound(c.DeleteUser(ctx, 7)))
	_, err = c.GetLabel(ctx, 9)
	assert.True(t, models.IsNotFound(err))
}

func TestClient_UsersAndLabels(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	u, err := c.CreateUser(ctx, &models.User{Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleDeveloper, u.Role)

	u, err = c.UpdateUser(ctx, u.ID, models.UserPatch{Email: ptr("ada@example.com")})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	got, err := c.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	l, err := c.CreateLabel(ctx, &models.Label{Name: "bug"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLabelColor, l.Color)

	l, err = c.UpdateLabel(ctx, l.ID, models.LabelPatch{Description: ptr("Broken")})
	require.NoError(t, err)
	assert.Equal(t, "Broken", l.Description)

	labels, err := c.ListLabels(ctx)
	require.NoError(t, err)
	assert.Len(t, labels, 1)
	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, c.DeleteLabel(ctx, l.ID))
	require.NoError(t, c.DeleteUser(ctx, u.ID))
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"database locked"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.ListIssues(context.Background())
	require.Error(t, err)
	assert.False(t, models.IsNotFound(err))
	assert.False(t, models.IsValidation(err))
	assert.Contains(t, err.Error(), "database locked")
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.ListUsers(context.Background())
	assert.Error(t, err)
}

func TestIssueRecord_DefaultFill(t *testing.T) {
	var rec issueRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id": 12, "title": "Sparse", "assignee": 3}`), &rec))
	issue := rec.toModel()

	assert.Equal(t, "12", issue.ID)
	assert.Equal(t, "Sparse", issue.Title)
	assert.Equal(t, "", issue.Description)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, models.IssuePriorityMedium, issue.Priority)
	assert.Equal(t, "3", issue.Assignee)
	assert.Equal(t, []int64{}, issue.LabelIDs)
}

func TestIssueRecord_Mapping(t *testing.T) {
	raw := `{
		"id": "01HX",
		"title": "Full",
		"description": "d",
		"status": "review",
		"priority": "bogus",
		"assignee": null,
		"labelIds": [1, 2.5, 3],
		"createdAt": "2026-01-02T10:00:00Z",
		"updatedAt": "2026-01-01T10:00:00Z"
	}`
	var rec issueRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	issue := rec.toModel()

	assert.Equal(t, "01HX", issue.ID)
	assert.Equal(t, models.IssueStatusReview, issue.Status)
	assert.Equal(t, models.IssuePriorityMedium, issue.Priority, "unknown priority falls back to medium")
	assert.Equal(t, "", issue.Assignee)
	assert.Equal(t, []int64{1, 3}, issue.LabelIDs)
	assert.True(t, issue.UpdatedAt.Equal(issue.CreatedAt), "updatedAt is never before createdAt")
}

func TestIssueRecord_FieldShapes(t *testing.T) {
	tests := []struct {
		name     string
		fields   string
		assignee string
		labels   []int64
	}{
		{"absent", ``, "", []int64{}},
		{"string assignee", `"assignee": "7"`, "7", []int64{}},
		{"number assignee", `"assignee": 7`, "7", []int64{}},
		{"lookup assignee", `"assignee": {"Id": 3, "Name": "Grace"}`, "3", []int64{}},
		{"lowercase lookup", `"assignee": {"id": "4"}`, "4", []int64{}},
		{"empty lookup", `"assignee": {}`, "", []int64{}},
		{"bad string entry", `"labelIds": [1, "oops", 3]`, "", []int64{1, 3}},
		{"numeric strings", `"labelIds": ["1", " 2 ", 2.5]`, "", []int64{1, 2}},
		{"csv string", `"labelIds": "1,2, 5"`, "", []int64{1, 2, 5}},
		{"csv with junk", `"labelIds": "1,,x,4"`, "", []int64{1, 4}},
		{"empty csv", `"labelIds": ""`, "", []int64{}},
		{"null labels", `"labelIds": null`, "", []int64{}},
		{"object labels", `"labelIds": {"a": 1}`, "", []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"id": "01HX", "title": "t"`
			if tt.fields != "" {
				raw += ", " + tt.fields
			}
			raw += "}"

			var rec issueRecord
			require.NoError(t, json.Unmarshal([]byte(raw), &rec))
			issue := rec.toModel()
			assert.Equal(t, tt.assignee, issue.Assignee)
			assert.Equal(t, tt.labels, issue.LabelIDs)
		})
	}
}

func TestIssueRecord_ListToleratesOddRecords(t *testing.T) {
	raw := `[
		{"id": 1, "title": "a", "labelIds": "1,2"},
		{"id": 2, "title": "b", "labelIds": [3, "oops"], "assignee": {"Id": 9}}
	]`
	var recs []issueRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, []int64{1, 2}, recs[0].toModel().LabelIDs)
	second := recs[1].toModel()
	assert.Equal(t, []int64{3}, second.LabelIDs)
	assert.Equal(t, "9", second.Assignee)
}

func TestUserAndLabelRecords(t *testing.T) {
	var u userRecord
	require.NoError(t, json.Unmarshal([]byte(`{"Id": 4, "name": "Grace", "role": "wizard"}`), &u))
	user := u.toModel()
	assert.Equal(t, int64(4), user.ID)
	assert.Equal(t, models.UserRoleDeveloper, user.Role)

	var l labelRecord
	require.NoError(t, json.Unmarshal([]byte(`{"Id": 2, "name": "docs"}`), &l))
	label := l.toModel()
	assert.Equal(t, int64(2), label.ID)
	assert.Equal(t, models.DefaultLabelColor, label.Color)
}

func TestRawString(t *testing.T) {
	assert.Equal(t, "", rawString(nil))
	assert.Equal(t, "", rawString(json.RawMessage(`null`)))
	assert.Equal(t, "abc", rawString(json.RawMessage(`"abc"`)))
	assert.Equal(t, "42", rawString(json.RawMessage(`42`)))
	assert.Equal(t, "", rawString(json.RawMessage(`{}`)))
	assert.Equal(t, "12", rawString(json.RawMessage(`{"Id": 12}`)))
	assert.Equal(t, "", rawString(json.RawMessage(`[1]`)))
}
