package oidc

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/models"
)

// PendingCookieName keys the suspended authorization attempt to the browser.
const PendingCookieName = "oidc_pending"

// suspend persists the authorization parameters against the user's session
// and redirects to the login collaborator with a callback pointer. This is
// the single suspension point in the flow; the stored entry is resumable
// exactly once.
func (s *Service) suspend(c *gin.Context, req *AuthorizeRequest) {
	pending := &models.PendingAuthorization{
		ID:        uuid.New().String(),
		Params:    encodeAuthorizeRequest(req),
		ExpiresAt: time.Now().Add(s.cfg.PendingTTL),
	}
	if err := s.db.Create(pending).Error; err != nil {
		s.log.WithError(err).Error("Failed to persist pending authorization")
		s.redirectError(c, *req, "server_error", "could not suspend authorization attempt")
		return
	}

	c.SetCookie(PendingCookieName, pending.ID, int(s.cfg.PendingTTL.Seconds()), "/", "", false, true)

	next := s.cfg.Issuer + "/oauth/authorize"
	c.Redirect(http.StatusFound, s.cfg.LoginURL+"?next="+url.QueryEscape(next))
}

// consumePending loads and deletes the suspended authorization attempt
// referenced by the request's cookie. Deleting before use makes each stored
// entry single-use regardless of the outcome of the resumed attempt.
func (s *Service) consumePending(c *gin.Context) (*AuthorizeRequest, bool) {
	id, err := c.Cookie(PendingCookieName)
	if err != nil || id == "" {
		return nil, false
	}
	c.SetCookie(PendingCookieName, "", -1, "/", "", false, true)

	var pending models.PendingAuthorization
	if err := s.db.Where("id = ?", id).First(&pending).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.WithError(err).Error("Failed to load pending authorization")
		}
		return nil, false
	}
	if err := s.db.Delete(&pending).Error; err != nil {
		s.log.WithError(err).Error("Failed to delete pending authorization")
		return nil, false
	}

	if time.Now().After(pending.ExpiresAt) {
		return nil, false
	}

	req, err := decodeAuthorizeRequest(pending.Params)
	if err != nil {
		return nil, false
	}
	return req, true
}

func encodeAuthorizeRequest(req *AuthorizeRequest) string {
	params := url.Values{}
	params.Set("response_type", req.ResponseType)
	params.Set("client_id", req.ClientID)
	params.Set("redirect_uri", req.RedirectURI)
	params.Set("scope", req.Scope)
	params.Set("state", req.State)
	params.Set("nonce", req.Nonce)
	if req.CodeChallenge != "" {
		params.Set("code_challenge", req.CodeChallenge)
		params.Set("code_challenge_method", req.CodeChallengeMethod)
	}
	return params.Encode()
}

func decodeAuthorizeRequest(encoded string) (*AuthorizeRequest, error) {
	params, err := url.ParseQuery(encoded)
	if err != nil {
		return nil, err
	}
	return &AuthorizeRequest{
		ResponseType:        params.Get("response_type"),
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		Scope:               params.Get("scope"),
		State:               params.Get("state"),
		Nonce:               params.Get("nonce"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
	}, nil
}
