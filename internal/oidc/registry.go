package oidc

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/models"
)

// ClientRegistry reads registered clients. Clients are provisioned out of
// band and are read-only from the protocol's perspective.
type ClientRegistry struct {
	db *gorm.DB
}

func NewClientRegistry(db *gorm.DB) *ClientRegistry {
	return &ClientRegistry{db: db}
}

// Lookup fetches a client by its client_id. An unknown client maps to
// ErrInvalidClient.
func (r *ClientRegistry) Lookup(clientID string) (*models.Client, error) {
	var client models.Client
	if err := r.db.Where("id = ?", clientID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("looking up client %s: %w", clientID, err)
	}
	return &client, nil
}

// Authenticate validates client credentials. Confidential clients must supply
// a secret matching the stored bcrypt hash; a confidential client with no
// secret is rejected. Public clients authenticate by identity alone and a
// supplied secret is ignored (known relaxation). Fails closed: lookup misses
// and secret mismatches both map to ErrInvalidClient.
func (r *ClientRegistry) Authenticate(clientID, clientSecret string) (*models.Client, error) {
	client, err := r.Lookup(clientID)
	if err != nil {
		return nil, err
	}

	if client.Type == models.ClientTypeConfidential {
		if clientSecret == "" {
			return nil, ErrInvalidClient
		}
		if bcrypt.CompareHashAndPassword([]byte(client.Secret), []byte(clientSecret)) != nil {
			return nil, ErrInvalidClient
		}
	}

	return client, nil
}

// ValidateRedirect reports exact string membership of the redirect URI in the
// client's allowed set. No normalization, no partial match.
func (r *ClientRegistry) ValidateRedirect(client *models.Client, redirectURI string) bool {
	return client.HasRedirectURI(redirectURI)
}
