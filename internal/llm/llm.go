package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/trackflow/internal/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5"

// Triage is the model's suggestion for a single issue.
type Triage struct {
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels"`
	Rationale   string   `json:"rationale"`
}

// ExtractedIssue holds a single issue extracted from markdown content.
type ExtractedIssue struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Labels      []string `json:"labels"`
}

// Client wraps the Anthropic API for issue triage and extraction.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildTriagePrompt constructs the system and user prompts for triaging an issue.
func buildTriagePrompt(issue *models.Issue, labels []*models.Label) (system string, user string) {
	system = `You triage issues for a kanban issue tracker. Given an issue's title and optional description, return a JSON object with these fields:
- "description": a concise 1-3 sentence description suitable for the tracker. Improve the existing description if one is given.
- "priority": one of "low", "medium", "high", "critical"
- "labels": names of labels from the known labels list that apply (may be empty). Never invent label names.
- "rationale": one sentence explaining the chosen priority

Rules:
- "critical" is reserved for outages, data loss and security problems
- Default priority to "medium" unless context suggests otherwise
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if len(labels) > 0 {
		sb.WriteString("Known labels:\n")
		for _, l := range labels {
			sb.WriteString("- ")
			sb.WriteString(l.Name)
			if l.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(l.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Issue title: ")
	sb.WriteString(issue.Title)
	sb.WriteString("\n")
	if issue.Description != "" {
		sb.WriteString("\nExisting description: ")
		sb.WriteString(issue.Description)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// buildExtractPrompt constructs the system and user prompts for issue extraction.
func buildExtractPrompt(content string, labels []*models.Label) (system string, user string) {
	system = `You extract structured issues from markdown content. Return ONLY a JSON array of objects with these fields:
- "title": concise issue title
- "description": brief description of the issue (can be empty string if the title is self-explanatory)
- "priority": one of "low", "medium", "high", "critical"
- "labels": names of labels from the known labels list that apply (may be empty)

Rules:
- Each numbered/bulleted item is one issue
- Default priority to "medium" unless context suggests otherwise
- Only use label names from the known labels list
- Never create placeholder issues like "no issues specified" or "N/A"
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if len(labels) > 0 {
		names := make([]string, len(labels))
		for i, l := range labels {
			names[i] = l.Name
		}
		sb.WriteString("Known labels: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Extract issues from this markdown:\n\n")
	sb.WriteString(content)
	user = sb.String()
	return
}

// TriageIssue asks the model for a description, priority and labels.
func (c *Client) TriageIssue(ctx context.Context, issue *models.Issue, labels []*models.Label) (*Triage, error) {
	systemPrompt, userPrompt := buildTriagePrompt(issue, labels)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 1024)
	if err != nil {
		return nil, err
	}

	var triage Triage
	if err := decodeResponse(text, &triage); err != nil {
		return nil, err
	}
	return &triage, nil
}

// ExtractIssues sends markdown content to the LLM and returns structured issues.
func (c *Client) ExtractIssues(ctx context.Context, content string, labels []*models.Label) ([]ExtractedIssue, error) {
	systemPrompt, userPrompt := buildExtractPrompt(content, labels)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 4096)
	if err != nil {
		return nil, err
	}

	var issues []ExtractedIssue
	if err := decodeResponse(text, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in API response")
}

// decodeResponse strips optional markdown fencing and unmarshals JSON into v.
func decodeResponse(text string, v any) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return nil
}

// Apply turns a triage suggestion into an issue patch. Unknown priorities and
// label names that do not exist are dropped.
func (t *Triage) Apply(labels []*models.Label) models.IssuePatch {
	var patch models.IssuePatch
	if d := strings.TrimSpace(t.Description); d != "" {
		patch.Description = &d
	}
	if p := models.IssuePriority(strings.ToLower(t.Priority)); p.Valid() {
		patch.Priority = &p
	}
	if ids := ResolveLabels(t.Labels, labels); len(ids) > 0 {
		patch.LabelIDs = &ids
	}
	return patch
}

// ResolveLabels maps label names to IDs, case-insensitively, skipping
// unknown names and duplicates.
func ResolveLabels(names []string, labels []*models.Label) []int64 {
	byName := make(map[string]int64, len(labels))
	for _, l := range labels {
		byName[strings.ToLower(l.Name)] = l.ID
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, n := range names {
		id, ok := byName[strings.ToLower(strings.TrimSpace(n))]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
