// Package session holds the authenticated identity of a browser and the
// single storage slot it is persisted in.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Session is the record of the currently authenticated identity. It is
// created on login and replaced or removed as a whole, never edited field by
// field.
type Session struct {
	Token      string `json:"token,omitempty"`
	UserID     int64  `json:"userId"`
	EmployeeID *int64 `json:"empId,omitempty"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	Email      string `json:"email,omitempty"`
}

// Resolved reports whether the session carries a usable role.
func (s Session) Resolved() bool {
	return s.Role != ""
}

// HasEmployee reports whether the identity is linked to an employee record.
func (s Session) HasEmployee() bool {
	return s.EmployeeID != nil
}

// Role is a role name in canonical form: upper-cased and trimmed. The ROLE_
// prefix is kept exactly as the backend sent it.
type Role string

// NormalizeRole returns the canonical form of a raw role name.
func NormalizeRole(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// String returns the canonical role name.
func (r Role) String() string {
	return string(r)
}

type roleObject struct {
	RoleName string `json:"roleName"`
	Name     string `json:"name"`
}

// UnmarshalJSON accepts a bare string, an object carrying roleName (or name)
// or null.
func (r *Role) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*r = ""
		return nil
	case data[0] == '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*r = Role(NormalizeRole(raw))
		return nil
	case data[0] == '{':
		var obj roleObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		name := obj.RoleName
		if strings.TrimSpace(name) == "" {
			name = obj.Name
		}
		*r = Role(NormalizeRole(name))
		return nil
	default:
		return fmt.Errorf("session: unsupported role value %s", data)
	}
}
