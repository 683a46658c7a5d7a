package domain

import (
	"strings"
	"time"
)

// Role is the global role of a user account.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// User is an authenticated account. PasswordHash is only populated on the
// storage path and never serialized to clients.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName,omitempty"`
	Role         Role      `json:"role"`
	Deleted      bool      `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the global admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// DisplayName returns the full name when present, otherwise a cleaned-up
// username (local part of an email address, first letter capitalized).
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	name := u.Username
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
