package oidc

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coreproject/auth-server/internal/models"
)

// AuthorizeRequest carries the query parameters of an authorization attempt.
type AuthorizeRequest struct {
	ResponseType        string `form:"response_type"`
	ClientID            string `form:"client_id"`
	RedirectURI         string `form:"redirect_uri"`
	Scope               string `form:"scope"`
	State               string `form:"state"`
	Nonce               string `form:"nonce"`
	CodeChallenge       string `form:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method"`
}

// HandleAuthorize is the authorization endpoint. It validates the client and
// redirect URI, enforces PKCE for public clients, suspends the flow for
// anonymous users, and redirects back to the client with a code and state.
//
// Unknown clients and unregistered redirect URIs get a JSON error instead of
// a redirect: redirecting errors to an unvalidated URI would be an open
// redirect. Every later failure is communicated by redirect.
func (s *Service) HandleAuthorize(c *gin.Context) {
	var req AuthorizeRequest
	if c.Query("client_id") != "" {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidRequest, err.Error()))
			return
		}
	} else {
		// No parameters: this may be a resumption after login.
		stored, ok := s.consumePending(c)
		if !ok {
			c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidRequest, "missing authorization parameters"))
			return
		}
		req = *stored
	}

	client, err := s.registry.Lookup(req.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidClient, "unknown client"))
		return
	}

	if !s.registry.ValidateRedirect(client, req.RedirectURI) {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidRequest, ErrInvalidRedirectURI.Description))
		return
	}

	if req.ResponseType != "code" {
		s.redirectError(c, req, models.ErrInvalidRequest, "response_type must be code")
		return
	}

	// Public clients must carry a PKCE challenge; confidential clients only
	// when flagged. The token endpoint re-checks verifier presence whenever a
	// challenge was stored.
	if req.CodeChallenge == "" && (client.Type == models.ClientTypePublic || client.RequirePKCE) {
		s.redirectError(c, req, ErrPKCERequired.Code, ErrPKCERequired.Description)
		return
	}
	if req.CodeChallenge != "" {
		switch req.CodeChallengeMethod {
		case "":
			req.CodeChallengeMethod = CodeChallengeMethodPlain // RFC 7636 default
		case CodeChallengeMethodPlain, CodeChallengeMethodS256:
		default:
			s.redirectError(c, req, ErrUnsupportedPKCE.Code, ErrUnsupportedPKCE.Description)
			return
		}
	}

	user, err := s.directory.CurrentUser(c)
	if err != nil {
		s.log.WithError(err).Error("Directory lookup for current user failed")
		s.redirectError(c, req, "server_error", "user directory unavailable")
		return
	}
	if user == nil {
		s.suspend(c, &req)
		return
	}

	code, err := s.codes.Issue(user.Sub, client, req.RedirectURI, req.Scope, req.Nonce, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		s.log.WithError(err).Error("Failed to issue authorization code")
		s.redirectError(c, req, "server_error", "could not issue authorization code")
		return
	}

	s.log.WithFields(logrus.Fields{
		"client_id": client.ID,
		"user_sub":  user.Sub,
		"scope":     req.Scope,
	}).Info("Authorization code issued")

	c.Redirect(http.StatusFound, buildRedirect(req.RedirectURI, url.Values{
		"code":  {code.Code},
		"state": {req.State},
	}))
}

// redirectError sends an authorize-step failure back to the client's
// validated redirect URI as error + error_description query parameters. The
// code and state are never exposed on failure.
func (s *Service) redirectError(c *gin.Context, req AuthorizeRequest, code, description string) {
	c.Redirect(http.StatusFound, buildRedirect(req.RedirectURI, url.Values{
		"error":             {code},
		"error_description": {description},
	}))
}

// buildRedirect appends params to the target URI, preserving any query
// parameters the registered URI already carries.
func buildRedirect(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		// The URI passed exact-match validation against the registry, so
		// this only happens when a registered URI itself is malformed.
		return target
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
