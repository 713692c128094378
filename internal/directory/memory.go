package directory

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
)

// MemoryDirectory is a directory backed by a fixed set of users. The current
// user is resolved by treating the session cookie value as the subject.
// Used for local development and tests.
type MemoryDirectory struct {
	users map[string]*User
}

// NewMemoryDirectory creates a directory holding the given users.
func NewMemoryDirectory(users ...*User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]*User, len(users))}
	for _, u := range users {
		d.users[u.Sub] = u
	}
	return d
}

// Add registers a user with the directory.
func (d *MemoryDirectory) Add(u *User) {
	d.users[u.Sub] = u
}

func (d *MemoryDirectory) CurrentUser(c *gin.Context) (*User, error) {
	sub, err := c.Cookie(SessionCookieName)
	if err != nil || sub == "" {
		return nil, nil
	}
	return d.users[sub], nil
}

func (d *MemoryDirectory) BySubject(ctx context.Context, sub string) (*User, error) {
	user, ok := d.users[sub]
	if !ok {
		return nil, fmt.Errorf("user %s not found in directory", sub)
	}
	return user, nil
}
