package models

import (
	"strings"
	"time"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ExternalPasswordHash marks a user whose identity is verified elsewhere.
// No password ever verifies against it.
const ExternalPasswordHash = "!external"

// DefaultUserScopes is assigned when a user is created without explicit scopes.
const DefaultUserScopes = "api"

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:'user'"` // "admin" or "user"
	Scopes       string `gorm:"not null;default:'api'"`  // comma-separated capability tags
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string {
	return "users"
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsExternal returns true if the user authenticates via an external provider
func (u *User) IsExternal() bool {
	return u.PasswordHash == ExternalPasswordHash
}

// ScopeList returns the user's scopes as a slice, dropping empty entries.
func (u *User) ScopeList() []string {
	return SplitList(u.Scopes)
}

// SplitList parses a comma- or space-separated list.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
