package models

import (
	"time"
)

// AuthorizationCode is a single-use credential binding a user's consent to a
// client, redirect URI and scope. It is consumed exactly once by stamping
// UsedAt inside the token-issuing transaction; rows are never deleted here.
type AuthorizationCode struct {
	Code                string `gorm:"primaryKey"`
	UserSub             string `gorm:"not null;index"`
	ClientID            string `gorm:"not null;index"`
	RedirectURI         string
	Scope               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time `gorm:"not null"`
	UsedAt              *time.Time
	CreatedAt           time.Time
}

func (AuthorizationCode) TableName() string {
	return "oauth_codes"
}

// IsValid reports whether the code can still be redeemed at the given instant.
func (c *AuthorizationCode) IsValid(now time.Time) bool {
	return now.Before(c.ExpiresAt) && c.UsedAt == nil
}
