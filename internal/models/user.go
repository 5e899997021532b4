package models

import (
	"strconv"
	"strings"
)

// UserRole is a team member's role.
type UserRole string

const (
	UserRoleDeveloper UserRole = "developer"
	UserRoleTester    UserRole = "tester"
	UserRoleManager   UserRole = "manager"
	UserRoleAdmin     UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleDeveloper, UserRoleTester, UserRoleManager, UserRoleAdmin:
		return true
	}
	return false
}

// User is a team member that issues can be assigned to.
type User struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Avatar string   `json:"avatar,omitempty"`
	Role   UserRole `json:"role"`
}

// Ref returns the value an Issue.Assignee holds for this user.
func (u *User) Ref() string {
	return UserRef(u.ID)
}

// UserRef formats a user ID as an assignee reference.
func UserRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ApplyDefaults trims text fields and defaults the role to developer.
func (u *User) ApplyDefaults() {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	if u.Role == "" {
		u.Role = UserRoleDeveloper
	}
}

// Validate checks required fields.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return &FieldError{Field: "name", Msg: "name is required"}
	}
	if !u.Role.Valid() {
		return &FieldError{Field: "role", Msg: "invalid role: " + string(u.Role)}
	}
	return nil
}

// UserPatch carries a partial user update.
type UserPatch struct {
	Name   *string   `json:"name,omitempty"`
	Email  *string   `json:"email,omitempty"`
	Avatar *string   `json:"avatar,omitempty"`
	Role   *UserRole `json:"role,omitempty"`
}

// Validate checks the fields present in the patch.
func (p UserPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &FieldError{Field: "name", Msg: "name is required"}
	}
	if p.Role != nil && !p.Role.Valid() {
		return &FieldError{Field: "role", Msg: "invalid role: " + string(*p.Role)}
	}
	return nil
}

// Apply merges the patch into the user.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		u.Email = strings.TrimSpace(*p.Email)
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
}

func validateUserRef(ref string) error {
	if ref == "" {
		return nil
	}
	if _, err := strconv.ParseInt(ref, 10, 64); err != nil {
		return &FieldError{Field: "assignee", Msg: "invalid assignee: " + ref}
	}
	return nil
}
