package oidc

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/models"
)

// CodeStore issues and redeems single-use authorization codes.
type CodeStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewCodeStore(db *gorm.DB, ttl time.Duration) *CodeStore {
	return &CodeStore{db: db, ttl: ttl}
}

// Issue creates an authorization code bound to the user, client, redirect URI,
// scope and optional PKCE challenge.
func (s *CodeStore) Issue(userSub string, client *models.Client, redirectURI, scope, nonce, codeChallenge, codeChallengeMethod string) (*models.AuthorizationCode, error) {
	value, err := GenerateTokenValue()
	if err != nil {
		return nil, err
	}

	code := &models.AuthorizationCode{
		Code:                value,
		UserSub:             userSub,
		ClientID:            client.ID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		Nonce:               nonce,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		ExpiresAt:           time.Now().Add(s.ttl),
	}

	if err := s.db.Create(code).Error; err != nil {
		return nil, fmt.Errorf("persisting authorization code: %w", err)
	}
	return code, nil
}

// Redeem consumes an authorization code. The lookup is scoped to the client
// so cross-client redemption fails even for a known code value. Expired and
// already-used codes produce the same error. The consume step is a
// conditional update on used_at, so of two concurrent redeemers exactly one
// sees a row flip and the other is rejected. Must run inside the caller's
// transaction together with token issuance.
func (s *CodeStore) Redeem(tx *gorm.DB, codeValue string, client *models.Client, redirectURI string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := tx.Where("code = ? AND client_id = ?", codeValue, client.ID).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("looking up authorization code: %w", err)
	}

	now := time.Now()
	if !code.IsValid(now) {
		return nil, ErrInvalidCode
	}
	if code.RedirectURI != redirectURI {
		return nil, ErrRedirectMismatch
	}

	result := tx.Model(&models.AuthorizationCode{}).
		Where("code = ? AND used_at IS NULL", code.Code).
		Update("used_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("consuming authorization code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost a concurrent redemption race.
		return nil, ErrInvalidCode
	}

	code.UsedAt = &now
	return &code, nil
}
