package oidc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Code challenge methods (RFC 7636)
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// VerifyPKCE checks the code verifier against the challenge stored with the
// authorization code. S256 compares base64url(sha256(verifier)) without
// padding, plain compares directly; comparisons are constant-time. Unknown
// methods are rejected.
func VerifyPKCE(codeVerifier, codeChallenge, method string) bool {
	switch method {
	case CodeChallengeMethodS256:
		digest := sha256.Sum256([]byte(codeVerifier))
		computed := base64.RawURLEncoding.EncodeToString(digest[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) == 1
	case CodeChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(codeVerifier), []byte(codeChallenge)) == 1
	default:
		return false
	}
}
