package models

import (
	"time"
)

// PendingAuthorization holds the query parameters of an authorization attempt
// that was suspended because the user was not yet authenticated. The row is
// keyed by an opaque cookie value and is consumed on resumption; entries are
// short-lived and single-use by convention.
type PendingAuthorization struct {
	ID        string `gorm:"primaryKey"`
	Params    string // url-encoded query string of the original request
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (PendingAuthorization) TableName() string {
	return "oauth_pending_authorizations"
}
