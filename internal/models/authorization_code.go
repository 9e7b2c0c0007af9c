package models

import "time"

// AuthorizationCode stores OAuth 2.0 authorization codes (RFC 6749).
// Codes are short-lived (default 10 minutes) and single-use.
type AuthorizationCode struct {
	Code        string    `gorm:"primaryKey;size:64"` // SHA256(plainCode)
	ClientID    string    `gorm:"column:client_id;not null;index"`
	UserID      string    `gorm:"not null"`
	RedirectURI string    `gorm:"column:redirect_uri;not null"`
	Scope       string    `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"not null;index"`
	CreatedAt   time.Time
}

func (a *AuthorizationCode) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

func (AuthorizationCode) TableName() string {
	return "auth_codes"
}
