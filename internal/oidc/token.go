package oidc

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/models"
)

// GrantType enumerates the supported token grants. Adding a grant means
// adding a constant and a case in HandleToken; anything else is rejected as
// unsupported_grant_type.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

// TokenRequest carries the form-encoded token endpoint parameters.
type TokenRequest struct {
	GrantType    string `form:"grant_type"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
	RefreshToken string `form:"refresh_token"`
	CodeVerifier string `form:"code_verifier"`
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// HandleToken is the token endpoint. It dispatches on grant_type and returns
// either a TokenResponse or a structured OAuth2 error with a 4xx status.
func (s *Service) HandleToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewOAuth2Error(models.ErrInvalidRequest, err.Error()))
		return
	}

	// Client credentials may arrive via HTTP basic auth instead of the form.
	if req.ClientID == "" {
		if id, secret, ok := c.Request.BasicAuth(); ok {
			req.ClientID = id
			req.ClientSecret = secret
		}
	}

	switch GrantType(req.GrantType) {
	case GrantAuthorizationCode:
		s.handleAuthorizationCodeGrant(c, &req)
	case GrantRefreshToken:
		s.handleRefreshTokenGrant(c, &req)
	default:
		s.tokenError(c, ErrUnsupportedGrantType)
	}
}

// handleAuthorizationCodeGrant redeems an authorization code for a token
// pair and a signed identity token. Redeeming the code, checking PKCE and
// issuing the pair run in one transaction: any failure rolls the whole unit
// back, so a code is never left consumed with no tokens issued and a new
// token generation is never left alongside a live older one.
func (s *Service) handleAuthorizationCodeGrant(c *gin.Context, req *TokenRequest) {
	client, err := s.registry.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		s.tokenError(c, err)
		return
	}

	var (
		token   *models.Token
		idToken string
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		code, err := s.codes.Redeem(tx, req.Code, client, req.RedirectURI)
		if err != nil {
			return err
		}

		// The token endpoint re-checks verifier presence independently of
		// the authorize step: a stored challenge always demands a verifier.
		if code.CodeChallenge != "" {
			if req.CodeVerifier == "" {
				return ErrMissingVerifier
			}
			if !VerifyPKCE(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
				return ErrInvalidVerifier
			}
		}

		user, err := s.directory.BySubject(c.Request.Context(), code.UserSub)
		if err != nil {
			return err
		}

		token, err = s.tokens.Issue(tx, code.UserSub, client, code.Scope)
		if err != nil {
			return err
		}

		idToken, err = s.signer.Sign(IdentityClaims{
			User:        user,
			ClientID:    client.ID,
			Scope:       code.Scope,
			Nonce:       code.Nonce,
			AccessToken: token.AccessToken,
		})
		return err
	})
	if err != nil {
		s.tokenError(c, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"client_id": client.ID,
		"user_sub":  token.UserSub,
		"grant":     string(GrantAuthorizationCode),
	}).Info("Token pair issued")

	c.JSON(http.StatusOK, s.tokenResponse(token, idToken))
}

// handleRefreshTokenGrant rotates the pair identified by the presented
// refresh token. The identity token carries no nonce on refresh.
func (s *Service) handleRefreshTokenGrant(c *gin.Context, req *TokenRequest) {
	client, err := s.registry.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		s.tokenError(c, err)
		return
	}

	var (
		token   *models.Token
		idToken string
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		token, err = s.tokens.Refresh(tx, req.RefreshToken, client)
		if err != nil {
			return err
		}

		user, err := s.directory.BySubject(c.Request.Context(), token.UserSub)
		if err != nil {
			return err
		}

		idToken, err = s.signer.Sign(IdentityClaims{
			User:        user,
			ClientID:    client.ID,
			Scope:       token.Scope,
			AccessToken: token.AccessToken,
		})
		return err
	})
	if err != nil {
		s.tokenError(c, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"client_id": client.ID,
		"user_sub":  token.UserSub,
		"grant":     string(GrantRefreshToken),
	}).Info("Token pair rotated")

	c.JSON(http.StatusOK, s.tokenResponse(token, idToken))
}

func (s *Service) tokenResponse(token *models.Token, idToken string) TokenResponse {
	resp := TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   int64(s.cfg.AccessTokenTTL.Seconds()),
		IDToken:     idToken,
		Scope:       token.Scope,
	}
	if token.RefreshToken != nil {
		resp.RefreshToken = *token.RefreshToken
	}
	return resp
}

// tokenError writes a token-step failure as structured JSON with a stable
// error code; unexpected failures become an opaque 500 without internal
// detail.
func (s *Service) tokenError(c *gin.Context, err error) {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.Status, models.NewOAuth2Error(oauthErr.Code, oauthErr.Description))
		return
	}
	s.log.WithError(err).Error("Token request failed")
	c.JSON(http.StatusInternalServerError, models.NewOAuth2Error("server_error", "token request could not be processed"))
}
