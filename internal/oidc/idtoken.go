package oidc

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coreproject/auth-server/internal/directory"
)

// IdentityClaims is the input to a signed identity token: the user's
// directory profile, the audience client, the granted scope, the nonce
// carried over from the authorization code (empty on refresh) and the
// co-issued access token (for the at_hash binding).
type IdentityClaims struct {
	User        *directory.User
	ClientID    string
	Scope       string
	Nonce       string
	AccessToken string
}

// IDTokenSigner builds and signs identity tokens with a fixed RS256 key.
// Rotating keys means publishing the new public key under a new kid before
// retiring the old one; JWKS returns a slice to support that.
type IDTokenSigner struct {
	issuer string
	key    *rsa.PrivateKey
	keyID  string
	ttl    time.Duration
}

func NewIDTokenSigner(issuer string, key *rsa.PrivateKey, keyID string, ttl time.Duration) *IDTokenSigner {
	return &IDTokenSigner{issuer: issuer, key: key, keyID: keyID, ttl: ttl}
}

// Sign serializes and signs the claim set as a compact JWT. given_name and
// family_name are included only when the granted scope contains "profile".
func (s *IDTokenSigner) Sign(ic IdentityClaims) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                s.issuer,
		"sub":                ic.User.Sub,
		"aud":                ic.ClientID,
		"exp":                now.Add(s.ttl).Unix(),
		"iat":                now.Unix(),
		"auth_time":          ic.User.LastLogin.Unix(),
		"name":               ic.User.Name,
		"email":              ic.User.Email,
		"preferred_username": ic.User.Username,
	}

	if ic.Nonce != "" {
		claims["nonce"] = ic.Nonce
	}
	if ScopeContains(ic.Scope, "profile") {
		claims["given_name"] = ic.User.GivenName
		claims["family_name"] = ic.User.FamilyName
	}
	if ic.AccessToken != "" {
		claims["at_hash"] = AccessTokenHash(ic.AccessToken)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing identity token: %w", err)
	}
	return signed, nil
}

// AccessTokenHash computes the OIDC at_hash claim: the left half of the
// SHA-256 digest of the access token value, base64url-encoded without
// padding.
func AccessTokenHash(accessToken string) string {
	digest := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(digest[:len(digest)/2])
}

// JWK is the public representation of a signing key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS returns the current public key set.
func (s *IDTokenSigner) JWKS() map[string][]JWK {
	pub := &s.key.PublicKey
	return map[string][]JWK{
		"keys": {
			{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: s.keyID,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}
