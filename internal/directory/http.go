package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SessionCookieName is the cookie the external login UI sets after
// authenticating a human. It is forwarded verbatim to the directory service.
const SessionCookieName = "session"

// HTTPDirectory talks to the user directory service over its internal REST
// API: GET /session resolves the forwarded session cookie to a user,
// GET /users/{sub} looks up profile claims by subject.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for the given base URL.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// CurrentUser resolves the request's session cookie via the directory
// service. A missing cookie or a 401 from the directory means anonymous.
func (d *HTTPDirectory) CurrentUser(c *gin.Context) (*User, error) {
	cookie, err := c.Cookie(SessionCookieName)
	if err != nil || cookie == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, d.baseURL+"/session", nil)
	if err != nil {
		return nil, fmt.Errorf("building directory session request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie})

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving session with directory: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var user User
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("decoding directory session response: %w", err)
		}
		return &user, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		log.WithField("status", resp.StatusCode).Debug("Directory rejected session cookie")
		return nil, nil
	default:
		return nil, fmt.Errorf("directory session lookup returned status %d", resp.StatusCode)
	}
}

// BySubject looks up a user's profile claims by stable subject identifier.
func (d *HTTPDirectory) BySubject(ctx context.Context, sub string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/users/"+url.PathEscape(sub), nil)
	if err != nil {
		return nil, fmt.Errorf("building directory user request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("looking up user %s: %w", sub, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("user %s not found in directory", sub)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory user lookup returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding directory user response: %w", err)
	}
	return &user, nil
}
