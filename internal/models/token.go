package models

import (
	"time"
)

// Token is an issued access/refresh token pair. Tokens are revoked, never
// deleted: issuing a new pair for the same (user, client) revokes every prior
// unrevoked row, so at most one generation is live at any time.
type Token struct {
	ID           uint   `gorm:"primaryKey"`
	UserSub      string `gorm:"not null;index:idx_tokens_user_client"`
	ClientID     string `gorm:"not null;index:idx_tokens_user_client"`
	AccessToken  string `gorm:"uniqueIndex;not null"`
	RefreshToken *string `gorm:"uniqueIndex"` // nil when refresh_token is not an allowed grant
	TokenType    string  `gorm:"default:'Bearer'"`
	Scope        string
	ExpiresAt    time.Time `gorm:"not null"`
	RevokedAt    *time.Time `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Token) TableName() string {
	return "oauth_tokens"
}

// IsValid reports whether the token is usable at the given instant.
func (t *Token) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt) && t.RevokedAt == nil
}
