package models

import (
	"regexp"
	"strings"
)

// DefaultLabelColor is used when a label is created without a colour.
const DefaultLabelColor = "#3B82F6"

// LabelColors is the quick-pick palette offered when creating labels.
var LabelColors = []string{
	"#EF4444", "#F97316", "#F59E0B", "#EAB308", "#84CC16",
	"#22C55E", "#10B981", "#14B8A6", "#06B6D4", "#0EA5E9",
	"#3B82F6", "#6366F1", "#8B5CF6", "#A855F7", "#C026D3",
	"#EC4899", "#F43F5E", "#64748B", "#6B7280", "#374151",
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Label categorises issues.
type Label struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// ApplyDefaults trims the name and fills in the default colour.
func (l *Label) ApplyDefaults() {
	l.Name = strings.TrimSpace(l.Name)
	l.Description = strings.TrimSpace(l.Description)
	if l.Color == "" {
		l.Color = DefaultLabelColor
	}
}

// Validate checks the name and colour.
func (l *Label) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return &FieldError{Field: "name", Msg: "label name is required"}
	}
	if !hexColor.MatchString(l.Color) {
		return &FieldError{Field: "color", Msg: "invalid color: " + l.Color}
	}
	return nil
}

// Matches reports whether term occurs in the name or description, ignoring case.
func (l *Label) Matches(term string) bool {
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(l.Name), term) ||
		strings.Contains(strings.ToLower(l.Description), term)
}

// LabelPatch carries a partial label update.
type LabelPatch struct {
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Validate checks the fields present in the patch.
func (p LabelPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &FieldError{Field: "name", Msg: "label name is required"}
	}
	if p.Color != nil && !hexColor.MatchString(*p.Color) {
		return &FieldError{Field: "color", Msg: "invalid color: " + *p.Color}
	}
	return nil
}

// Apply merges the patch into the label.
func (p LabelPatch) Apply(l *Label) {
	if p.Name != nil {
		l.Name = strings.TrimSpace(*p.Name)
	}
	if p.Color != nil {
		l.Color = *p.Color
	}
	if p.Description != nil {
		l.Description = strings.TrimSpace(*p.Description)
	}
}
