package oidc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// GenerateTokenValue returns a URL-safe random credential value with 384 bits
// of entropy. Used for authorization codes, access tokens and refresh tokens;
// uniqueness is guaranteed by construction with the storage unique index as
// the backstop.
func GenerateTokenValue() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ScopeContains reports whether the space-delimited scope string contains
// the given scope value.
func ScopeContains(scope, value string) bool {
	for _, s := range strings.Fields(scope) {
		if s == value {
			return true
		}
	}
	return false
}
