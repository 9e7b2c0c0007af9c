package models

import (
	"slices"
	"strings"
	"time"
)

// Client is an OAuth2 relying party.
type Client struct {
	ClientID           string `gorm:"column:client_id;primaryKey;size:128"`
	ClientSecret       string `gorm:"not null"` // bcrypt hash once ClientSecretHashed is set
	ClientSecretHashed bool   `gorm:"not null;default:false"`
	AllowedScopes      string `gorm:"not null;default:'api'"`              // comma-separated scopes
	RedirectURIs       string `gorm:"column:redirect_uris;type:text"`      // comma-separated redirect URIs
	CreatedAt          time.Time
}

func (Client) TableName() string {
	return "clients"
}

// RedirectURIList returns the registered redirect URIs.
func (c *Client) RedirectURIList() []string {
	var out []string
	for _, u := range strings.Split(c.RedirectURIs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// AllowsRedirect reports whether uri exactly matches a registered redirect URI.
func (c *Client) AllowsRedirect(uri string) bool {
	return uri != "" && slices.Contains(c.RedirectURIList(), uri)
}

// ScopeList returns the client's allowed scopes.
func (c *Client) ScopeList() []string {
	return SplitList(c.AllowedScopes)
}
