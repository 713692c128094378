package oidc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coreproject/auth-server/internal/models"
)

// UserInfoResponse is the standard userinfo claim set.
type UserInfoResponse struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified"`
}

// HandleUserInfo returns the subject's directory claims for the bearer token
// the middleware resolved. given_name and family_name are gated on the
// token's granted scope containing "profile".
func (s *Service) HandleUserInfo(c *gin.Context) {
	sub := c.GetString("userSub")
	scope := c.GetString("scope")

	user, err := s.directory.BySubject(c.Request.Context(), sub)
	if err != nil {
		s.log.WithError(err).WithField("user_sub", sub).Error("Directory lookup failed")
		c.JSON(http.StatusInternalServerError, models.NewOAuth2Error("server_error", "user directory unavailable"))
		return
	}

	resp := UserInfoResponse{
		Sub:               user.Sub,
		Name:              user.Name,
		PreferredUsername: user.Username,
		Email:             user.Email,
		EmailVerified:     user.EmailVerified,
	}
	if ScopeContains(scope, "profile") {
		resp.GivenName = user.GivenName
		resp.FamilyName = user.FamilyName
	}

	c.JSON(http.StatusOK, resp)
}
