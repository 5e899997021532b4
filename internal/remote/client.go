// Package remote implements store.Store against a record-store REST API,
// such as the one served by `trackflow serve`.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

// DefaultTimeout bounds each API call when none is configured.
const DefaultTimeout = 10 * time.Second

var _ store.Store = (*Client)(nil)

// Client talks to the record-store API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. http://localhost:8080). A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: timeout},
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// entity and id describe the target for not-found errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any, entity, id string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, data, method, path, entity, id)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError maps an HTTP error response onto the error taxonomy.
func responseError(status int, body []byte, method, path, entity, id string) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &models.FieldError{Msg: msg}
	case http.StatusNotFound:
		if entity != "" {
			return &models.NotFoundError{Entity: entity, ID: id}
		}
		return &models.NotFoundError{Entity: "resource", ID: path}
	default:
		return fmt.Errorf("%s %s: %d %s", method, path, status, msg)
	}
}

// --- Issues ---

func (c *Client) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	var records []issueRecord
	if err := c.do(ctx, http.MethodGet, "/issues?sort=createdAt&direction=asc", nil, &records, "", ""); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	issues := make([]*models.Issue, len(records))
	for i := range records {
		issues[i] = records[i].toModel()
	}
	return issues, nil
}

func (c *Client) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	var rec issueRecord
	if err := c.do(ctx, http.MethodGet, "/issues/"+url.PathEscape(id), nil, &rec, "issue", id); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (c *Client) CreateIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	candidate := issue.Clone()
	candidate.ApplyDefaults()
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	var rec issueRecord
	if err := c.do(ctx, http.MethodPost, "/issues", candidate, &rec, "", ""); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return rec.toModel(), nil
}

func (c *Client) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var rec issueRecord
	if err := c.do(ctx, http.MethodPatch, "/issues/"+url.PathEscape(id), patch, &rec, "issue", id); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (c *Client) DeleteIssue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/issues/"+url.PathEscape(id), nil, nil, "issue", id)
}

// --- Users ---

func (c *Client) ListUsers(ctx context.Context) ([]*models.User, error) {
	var records []userRecord
	if err := c.do(ctx, http.MethodGet, "/users", nil, &records, "", ""); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]*models.User, len(records))
	for i := range records {
		users[i] = records[i].toModel()
	}
	return users, nil
}

func (c *Client) GetUser(ctx context.Context, id int64) (*models.User, error) {
	ref := strconv.FormatInt(id, 10)
	var rec userRecord
	if err := c.do(ctx, http.MethodGet, "/users/"+ref, nil, &rec, "user", ref); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (c *Client) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	candidate := *user
	candidate.ApplyDefaults()
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	var rec userRecord
	if err := c.do(ctx, http.MethodPost, "/users", candidate, &rec, "", ""); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return rec.toModel(), nil
}

func (c *Client) UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	ref := strconv.FormatInt(id, 10)
	var rec userRecord
	if err := c.do(ctx, http.MethodPatch, "/users/"+ref, patch, &rec, "user", ref); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	ref := strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, "/users/"+ref, nil, nil, "user", ref)
}

// --- Labels ---

func (c *Client) ListLabels(ctx context.Context) ([]*models.Label, error) {
	var records []labelRecord
	if err := c.do(ctx, http.MethodGet, "/labels", nil, &records, "", ""); err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	labels := make([]*models.Label, len(records))
	for i := range records {
		labels[i] = records[i].toModel()
	}
	return labels, nil
}

func (c *Client) GetLabel(ctx context.Context, id int64) (*models.Label, error) {
	ref := strconv.FormatInt(id, 10)
	var rec labelRecord
	if err := c.do(ctx, http.MethodGet, "/labels/"+ref, nil, &rec, "label", ref); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (c *Client) CreateLabel(ctx context.Context, label *models.Label) (*models.Label, error) {
	candidate := *label
	candidate.ApplyDefaults()
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	var rec labelRecord
	if err := c.do(ctx, http.MethodPost, "/labels", candidate, &rec, "", ""); err != nil {
		return nil, fmt.Errorf("create label: %w", err)
	}
	return rec.toModel(), nil
}

func (c *Client) UpdateLabel(ctx context.Context, id int64, patch models.LabelPatch) (*models.Label, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	ref := strconv.FormatInt(id, 10)
	var rec labelRecord
	if err := c.do(ctx, http.MethodPatch, "/labels/"+ref, patch, &rec, "label", ref); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (c *Client) DeleteLabel(ctx context.Context, id int64) error {
	ref := strconv.FormatInt(id, 10)
	return c.do(ctx, http.MethodDelete, "/labels/"+ref, nil, nil, "label", ref)
}
