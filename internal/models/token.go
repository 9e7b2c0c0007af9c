package models

import (
	"time"
)

// Token kinds recorded in the ledger
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeUnknown = "unknown"
)

// Token is one ledger row keyed by the JWT "jti" claim.
// A nil ExpiresAt marks a legacy or placeholder row that never expires.
type Token struct {
	JTI       string     `gorm:"column:jti;primaryKey;size:64"`
	TokenType string     `gorm:"not null;default:'unknown'"`
	Revoked   bool       `gorm:"not null;default:false"`
	IssuedAt  time.Time  `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
}

func (Token) TableName() string {
	return "tokens"
}

// IsExpired reports whether the row's expiry has passed at now.
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
