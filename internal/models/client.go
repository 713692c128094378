package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Client types as defined by RFC 6749 section 2.1
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// Client is a registered relying party. Rows are provisioned out of band
// (scripts/create_client.go) and are read-only from the protocol's perspective.
type Client struct {
	ID           string `gorm:"primaryKey"` // client_id
	Secret       string // bcrypt hash; empty for public clients
	Name         string
	Type         string `gorm:"not null"` // confidential or public
	RedirectURIs string // Space-separated set, exact match only
	Scopes       string // Space-separated list of allowed scopes
	GrantTypes   string // Space-separated list: "authorization_code refresh_token"
	RequirePKCE  bool
	JWKSURI      string // informational, unused by the protocol core
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (Client) TableName() string {
	return "oauth_clients"
}

// HasRedirectURI reports exact string membership in the allowed set.
// No normalization, no prefix or wildcard matching.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, allowed := range strings.Fields(c.RedirectURIs) {
		if allowed == uri {
			return true
		}
	}
	return false
}

// HasGrantType reports whether the client may use the given grant type.
func (c *Client) HasGrantType(grantType string) bool {
	for _, allowed := range strings.Fields(c.GrantTypes) {
		if allowed == grantType {
			return true
		}
	}
	return false
}
