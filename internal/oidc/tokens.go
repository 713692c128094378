package oidc

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/models"
)

// TokenStore mints access/refresh token pairs and enforces the single active
// generation rule: for a given (user, client) pair at most one unrevoked
// Token row exists at any time.
type TokenStore struct {
	db        *gorm.DB
	accessTTL time.Duration
}

func NewTokenStore(db *gorm.DB, accessTTL time.Duration) *TokenStore {
	return &TokenStore{db: db, accessTTL: accessTTL}
}

// Issue mints a new token pair for the user and client. A refresh token is
// included only when the client's grant types allow refresh_token. The new
// row is created first and every other unrevoked row for the pair is revoked
// after, so there is no instant with zero valid tokens for the pair. Must run
// inside the caller's transaction.
func (s *TokenStore) Issue(tx *gorm.DB, userSub string, client *models.Client, scope string) (*models.Token, error) {
	access, err := GenerateTokenValue()
	if err != nil {
		return nil, err
	}

	token := &models.Token{
		UserSub:     userSub,
		ClientID:    client.ID,
		AccessToken: access,
		TokenType:   "Bearer",
		Scope:       scope,
		ExpiresAt:   time.Now().Add(s.accessTTL),
	}

	if client.HasGrantType(string(GrantRefreshToken)) {
		refresh, err := GenerateTokenValue()
		if err != nil {
			return nil, err
		}
		token.RefreshToken = &refresh
	}

	if err := tx.Create(token).Error; err != nil {
		return nil, fmt.Errorf("persisting token: %w", err)
	}

	if err := s.revokeOthers(tx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Refresh rotates the pair identified by the presented refresh token. The
// conditional revoke of the presented row is the serialization point: of two
// concurrent refreshes with the same token exactly one flips revoked_at and
// proceeds. Refresh tokens are always rotated, never reused. Must run inside
// the caller's transaction.
func (s *TokenStore) Refresh(tx *gorm.DB, refreshValue string, client *models.Client) (*models.Token, error) {
	var old models.Token
	if err := tx.Where("refresh_token = ? AND client_id = ?", refreshValue, client.ID).First(&old).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	now := time.Now()
	if !old.IsValid(now) {
		return nil, ErrInvalidRefreshToken
	}

	result := tx.Model(&models.Token{}).
		Where("id = ? AND revoked_at IS NULL", old.ID).
		Update("revoked_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("revoking refreshed token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvalidRefreshToken
	}

	return s.Issue(tx, old.UserSub, client, old.Scope)
}

// LookupAccess resolves a bearer access token to its row, rejecting expired
// or revoked tokens.
func (s *TokenStore) LookupAccess(accessToken string) (*models.Token, error) {
	var token models.Token
	if err := s.db.Where("access_token = ?", accessToken).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAccessToken
		}
		return nil, fmt.Errorf("looking up access token: %w", err)
	}
	if !token.IsValid(time.Now()) {
		return nil, ErrInvalidAccessToken
	}
	return &token, nil
}

func (s *TokenStore) revokeOthers(tx *gorm.DB, token *models.Token) error {
	err := tx.Model(&models.Token{}).
		Where("user_sub = ? AND client_id = ? AND revoked_at IS NULL AND id <> ?",
			token.UserSub, token.ClientID, token.ID).
		Update("revoked_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("revoking prior tokens for user %s client %s: %w", token.UserSub, token.ClientID, err)
	}
	return nil
}
