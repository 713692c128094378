// Package directory defines the User Directory collaborator contract. The
// authorization server never stores users itself; it resolves the current
// user from the request's session and looks up profile claims by subject.
package directory

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// User is the profile the directory exposes for a subject.
type User struct {
	Sub           string    `json:"sub"`
	Username      string    `json:"preferred_username"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name"`
	GivenName     string    `json:"given_name"`
	FamilyName    string    `json:"family_name"`
	LastLogin     time.Time `json:"last_login"`
}

// Directory resolves end users. CurrentUser returns (nil, nil) for an
// anonymous request; errors are reserved for directory failures.
type Directory interface {
	CurrentUser(c *gin.Context) (*User, error)
	BySubject(ctx context.Context, sub string) (*User, error)
}
