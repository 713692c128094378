package oidc

import (
	"crypto/rsa"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/config"
	"github.com/coreproject/auth-server/internal/directory"
)

// Service wires the protocol components behind the public endpoints. All
// cross-request state lives in the database; the service itself is immutable
// after construction.
type Service struct {
	db        *gorm.DB
	cfg       *config.Config
	registry  *ClientRegistry
	codes     *CodeStore
	tokens    *TokenStore
	signer    *IDTokenSigner
	directory directory.Directory
	log       *logrus.Logger
}

func NewService(db *gorm.DB, cfg *config.Config, dir directory.Directory, signingKey *rsa.PrivateKey, log *logrus.Logger) *Service {
	return &Service{
		db:        db,
		cfg:       cfg,
		registry:  NewClientRegistry(db),
		codes:     NewCodeStore(db, cfg.CodeTTL),
		tokens:    NewTokenStore(db, cfg.AccessTokenTTL),
		signer:    NewIDTokenSigner(cfg.Issuer, signingKey, cfg.SigningKeyID, cfg.IDTokenTTL),
		directory: dir,
		log:       log,
	}
}

// Tokens exposes the token store for the bearer middleware.
func (s *Service) Tokens() *TokenStore {
	return s.tokens
}
