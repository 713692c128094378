package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/config"
	"github.com/coreproject/auth-server/internal/models"
)

var (
	testKeyOnce sync.Once
	testKeyRSA  *rsa.PrivateKey
)

// testSigningKey generates one RSA key per test binary run.
func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKeyRSA = key
	})
	return testKeyRSA
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Client{}, &models.AuthorizationCode{}, &models.Token{}, &models.PendingAuthorization{})
	require.NoError(t, err)

	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Issuer:         "https://auth.test",
		LoginURL:       "https://auth.test/login",
		SigningKeyID:   "test-key",
		CodeTTL:        10 * time.Minute,
		AccessTokenTTL: time.Hour,
		IDTokenTTL:     10 * time.Minute,
		PendingTTL:     15 * time.Minute,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func hashSecret(t *testing.T, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hash)
}

func createTestClient(t *testing.T, db *gorm.DB, client *models.Client) *models.Client {
	t.Helper()
	require.NoError(t, db.Create(client).Error)
	return client
}
