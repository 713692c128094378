package oidc

import (
	"net/http"

	"github.com/coreproject/auth-server/internal/models"
)

// Error is a protocol failure surfaced to the caller. Code is the stable
// RFC 6749 error code, Description is a stable string callers can branch on,
// Status is the HTTP status used for token-endpoint responses.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

// The full error taxonomy. Expired and already-used authorization codes share
// one error so a caller cannot tell which; everything else is distinct.
var (
	ErrInvalidClient = &Error{models.ErrInvalidClient, "client authentication failed", http.StatusUnauthorized}

	ErrInvalidRedirectURI = &Error{models.ErrInvalidRequest, "redirect_uri is not registered for this client", http.StatusBadRequest}
	ErrPKCERequired       = &Error{models.ErrInvalidRequest, "PKCE is required for this client", http.StatusBadRequest}
	ErrUnsupportedPKCE    = &Error{models.ErrInvalidRequest, "unsupported code_challenge_method", http.StatusBadRequest}

	ErrInvalidCode      = &Error{models.ErrInvalidGrant, "authorization code is invalid, expired or already used", http.StatusBadRequest}
	ErrRedirectMismatch = &Error{models.ErrInvalidGrant, "redirect_uri does not match the authorization request", http.StatusBadRequest}
	ErrMissingVerifier  = &Error{models.ErrInvalidGrant, "code_verifier is required", http.StatusBadRequest}
	ErrInvalidVerifier  = &Error{models.ErrInvalidGrant, "code_verifier does not match the code challenge", http.StatusBadRequest}

	ErrInvalidRefreshToken = &Error{models.ErrInvalidGrant, "refresh token is invalid, expired or revoked", http.StatusBadRequest}

	ErrUnsupportedGrantType = &Error{models.ErrUnsupportedGrantType, "grant_type must be authorization_code or refresh_token", http.StatusBadRequest}

	ErrInvalidAccessToken = &Error{models.ErrInvalidToken, "access token is invalid, expired or revoked", http.StatusUnauthorized}
)
