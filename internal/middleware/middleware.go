package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coreproject/auth-server/internal/oidc"
)

// BearerAuth resolves an RFC 6750 bearer access token against the token
// store and puts the subject, client and granted scope on the request
// context. Opaque tokens are validated purely by storage lookup: the row
// must exist, be unexpired and unrevoked.
func BearerAuth(tokens *oidc.TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondWithOAuth2Error(c, http.StatusUnauthorized, "invalid_request",
				"Missing Authorization header. A valid Bearer token is required.")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondWithOAuth2Error(c, http.StatusUnauthorized, "invalid_request",
				"Authorization header must use Bearer scheme. Format: 'Bearer <token>'")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			respondWithOAuth2Error(c, http.StatusUnauthorized, "invalid_token",
				"Bearer token is empty")
			return
		}

		token, err := tokens.LookupAccess(tokenString)
		if err != nil {
			respondWithOAuth2Error(c, http.StatusUnauthorized, "invalid_token",
				"access token is invalid, expired or revoked")
			return
		}

		c.Set("userSub", token.UserSub)
		c.Set("clientID", token.ClientID)
		c.Set("scope", token.Scope)

		c.Next()
	}
}

// RequireScope checks that the granted scope of the authenticated token
// contains the required value. Presence/absence only, no policy beyond that.
func RequireScope(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := c.GetString("scope")
		if !oidc.ScopeContains(scope, required) {
			respondWithOAuth2Error(c, http.StatusForbidden, "insufficient_scope",
				"token scope does not include "+required)
			return
		}
		c.Next()
	}
}

// respondWithOAuth2Error responds with RFC 6750 compliant error format
func respondWithOAuth2Error(c *gin.Context, status int, errorCode, description string) {
	c.JSON(status, gin.H{
		"error":             errorCode,
		"error_description": description,
	})
	c.Abort()
}
