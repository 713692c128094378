package oidc_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/config"
	"github.com/coreproject/auth-server/internal/directory"
	"github.com/coreproject/auth-server/internal/middleware"
	"github.com/coreproject/auth-server/internal/models"
	"github.com/coreproject/auth-server/internal/oidc"
)

type flowFixture struct {
	db     *gorm.DB
	router *gin.Engine
	key    *rsa.PrivateKey
	users  *directory.MemoryDirectory
}

// setupFlow builds the full HTTP surface the way cmd/main.go wires it, with
// an in-memory database and directory.
func setupFlow(t *testing.T) *flowFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Client{}, &models.AuthorizationCode{}, &models.Token{}, &models.PendingAuthorization{}))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	users := directory.NewMemoryDirectory(&directory.User{
		Sub:           "user-1",
		Username:      "jdoe",
		Email:         "jdoe@example.com",
		EmailVerified: true,
		Name:          "Jordan Doe",
		GivenName:     "Jordan",
		FamilyName:    "Doe",
		LastLogin:     time.Now().Add(-time.Hour),
	})

	cfg := &config.Config{
		Issuer:         "https://auth.test",
		LoginURL:       "https://auth.test/login",
		SigningKeyID:   "test-key",
		CodeTTL:        10 * time.Minute,
		AccessTokenTTL: time.Hour,
		IDTokenTTL:     10 * time.Minute,
		PendingTTL:     15 * time.Minute,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	service := oidc.NewService(db, cfg, users, key, logger)

	router := gin.New()
	router.GET("/oauth/authorize", service.HandleAuthorize)
	router.POST("/oauth/token", service.HandleToken)
	protected := router.Group("/oauth")
	protected.Use(middleware.BearerAuth(service.Tokens()), middleware.RequireScope("openid"))
	protected.GET("/userinfo", service.HandleUserInfo)
	router.GET("/.well-known/openid-configuration", service.HandleDiscovery)
	router.GET("/.well-known/jwks.json", service.HandleJWKS)

	return &flowFixture{db: db, router: router, key: key, users: users}
}

func (f *flowFixture) createClient(t *testing.T, client *models.Client) {
	t.Helper()
	require.NoError(t, f.db.Create(client).Error)
}

func (f *flowFixture) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *flowFixture) postToken(form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *flowFixture) userinfo(accessToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(sub string) *http.Cookie {
	return &http.Cookie{Name: directory.SessionCookieName, Value: sub}
}

func codeFromRedirect(t *testing.T, w *httptest.ResponseRecorder) (code, state string) {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	q := location.Query()
	require.Empty(t, q.Get("error"), "error_description: %s", q.Get("error_description"))
	require.NotEmpty(t, q.Get("code"))
	return q.Get("code"), q.Get("state")
}

func decodeTokenResponse(t *testing.T, w *httptest.ResponseRecorder) oidc.TokenResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	var resp oidc.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func pkcePair() (verifier, challenge string) {
	verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	digest := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(digest[:])
}

func TestAuthorizationCodeFlowPublicClient(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
		Scopes:       "openid profile email",
		GrantTypes:   "authorization_code refresh_token",
	})

	verifier, challenge := pkcePair()

	w := f.get("/oauth/authorize?"+url.Values{
		"response_type":         {"code"},
		"client_id":             {"spa"},
		"redirect_uri":          {"https://app/cb"},
		"scope":                 {"openid profile email"},
		"state":                 {"xyz"},
		"nonce":                 {"n-0S6_WzA2Mj"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode(), sessionCookie("user-1"))

	code, state := codeFromRedirect(t, w)
	assert.Equal(t, "xyz", state)

	resp := decodeTokenResponse(t, f.postToken(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://app/cb"},
		"client_id":     {"spa"},
		"code_verifier": {verifier},
	}))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "openid profile email", resp.Scope)

	parsed, err := jwt.Parse(resp.IDToken, func(token *jwt.Token) (interface{}, error) {
		return &f.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "https://auth.test", claims["iss"])
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "spa", claims["aud"])
	assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	assert.Equal(t, oidc.AccessTokenHash(resp.AccessToken), claims["at_hash"])
	assert.Equal(t, "Jordan", claims["given_name"])

	info := f.userinfo(resp.AccessToken)
	require.Equal(t, http.StatusOK, info.Code)
	var profile oidc.UserInfoResponse
	require.NoError(t, json.Unmarshal(info.Body.Bytes(), &profile))
	assert.Equal(t, "user-1", profile.Sub)
	assert.Equal(t, "jdoe@example.com", profile.Email)
	assert.Equal(t, "Jordan", profile.GivenName)
}

func TestTokenEndpointWrongVerifier(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
		GrantTypes:   "authorization_code refresh_token",
	})

	_, challenge := pkcePair()
	w := f.get("/oauth/authorize?"+url.Values{
		"response_type":         {"code"},
		"client_id":             {"spa"},
		"redirect_uri":          {"https://app/cb"},
		"scope":                 {"openid"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode(), sessionCookie("user-1"))
	code, _ := codeFromRedirect(t, w)

	resp := f.postToken(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://app/cb"},
		"client_id":     {"spa"},
		"code_verifier": {"not-the-right-verifier-at-all-not-even-close"},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, models.ErrInvalidGrant, body.Error)

	// The failed exchange rolled back: no tokens were minted.
	var count int64
	require.NoError(t, f.db.Model(&models.Token{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTokenEndpointMissingVerifier(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
		GrantTypes:   "authorization_code",
	})

	_, challenge := pkcePair()
	w := f.get("/oauth/authorize?"+url.Values{
		"response_type":         {"code"},
		"client_id":             {"spa"},
		"redirect_uri":          {"https://app/cb"},
		"scope":                 {"openid"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode(), sessionCookie("user-1"))
	code, _ := codeFromRedirect(t, w)

	resp := f.postToken(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://app/cb"},
		"client_id":    {"spa"},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, models.ErrInvalidGrant, body.Error)
	assert.Equal(t, "code_verifier is required", body.ErrorDescription)
}

func TestConfidentialClientFlowWithBasicAuth(t *testing.T) {
	f := setupFlow(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	require.NoError(t, err)
	f.createClient(t, &models.Client{
		ID:           "web-app",
		Secret:       string(hash),
		Type:         models.ClientTypeConfidential,
		RedirectURIs: "https://web.example/cb",
		GrantTypes:   "authorization_code refresh_token",
	})

	w := f.get("/oauth/authorize?"+url.Values{
		"response_type": {"code"},
		"client_id":     {"web-app"},
		"redirect_uri":  {"https://web.example/cb"},
		"scope":         {"openid email"},
	}.Encode(), sessionCookie("user-1"))
	code, _ := codeFromRedirect(t, w)

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://web.example/cb"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web-app", "s3cret")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	resp := decodeTokenResponse(t, rec)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
}

func TestConfidentialClientRejectedWithoutSecret(t *testing.T) {
	f := setupFlow(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	require.NoError(t, err)
	f.createClient(t, &models.Client{
		ID:           "web-app",
		Secret:       string(hash),
		Type:         models.ClientTypeConfidential,
		RedirectURIs: "https://web.example/cb",
		GrantTypes:   "authorization_code",
	})

	w := f.get("/oauth/authorize?"+url.Values{
		"response_type": {"code"},
		"client_id":     {"web-app"},
		"redirect_uri":  {"https://web.example/cb"},
		"scope":         {"openid"},
	}.Encode(), sessionCookie("user-1"))
	code, _ := codeFromRedirect(t, w)

	resp := f.postToken(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://web.example/cb"},
		"client_id":    {"web-app"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, models.ErrInvalidClient, body.Error)
}

func TestRefreshRotationInvalidatesOldTokens(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
		GrantTypes:   "authorization_code refresh_token",
	})

	verifier, challenge := pkcePair()
	w := f.get("/oauth/authorize?"+url.Values{
		"response_type":         {"code"},
		"client_id":             {"spa"},
		"redirect_uri":          {"https://app/cb"},
		"scope":                 {"openid"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode(), sessionCookie("user-1"))
	code, _ := codeFromRedirect(t, w)

	first := decodeTokenResponse(t, f.postToken(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://app/cb"},
		"client_id":     {"spa"},
		"code_verifier": {verifier},
	}))

	second := decodeTokenResponse(t, f.postToken(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {"spa"},
	}))
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEmpty(t, second.IDToken)

	// The old access token is dead after rotation, the new one works.
	assert.Equal(t, http.StatusUnauthorized, f.userinfo(first.AccessToken).Code)
	assert.Equal(t, http.StatusOK, f.userinfo(second.AccessToken).Code)

	// The presented refresh token is single-use.
	replay := f.postToken(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {"spa"},
	})
	require.Equal(t, http.StatusBadRequest, replay.Code)
	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &body))
	assert.Equal(t, models.ErrInvalidGrant, body.Error)
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
		GrantTypes:   "authorization_code",
	})

	verifier, challenge := pkcePair()
	w := f.get("/oauth/authorize?"+url.Values{
		"response_type":         {"code"},
		"client_id":             {"spa"},
		"redirect_uri":          {"https://app/cb"},
		"scope":                 {"openid"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode(), sessionCookie("user-1"))
	code, _ := codeFromRedirect(t, w)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://app/cb"},
		"client_id":     {"spa"},
		"code_verifier": {verifier},
	}
	decodeTokenResponse(t, f.postToken(form))

	replay := f.postToken(form)
	require.Equal(t, http.StatusBadRequest, replay.Code)
	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &body))
	assert.Equal(t, models.ErrInvalidGrant, body.Error)
}

func TestAuthorizeUnknownClient(t *testing.T) {
	f := setupFlow(t)

	w := f.get("/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"nobody"},
		"redirect_uri":  {"https://evil.example/cb"},
	}.Encode())
	// No redirect to an unvalidated URI.
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.ErrInvalidClient, body.Error)
}

func TestAuthorizeUnregisteredRedirect(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
	})

	w := f.get("/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {"spa"},
		"redirect_uri":  {"https://evil.example/cb"},
	}.Encode())
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.ErrInvalidRequest, body.Error)
}

func TestAuthorizePublicClientWithoutChallenge(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
	})

	w := f.get("/oauth/authorize?"+url.Values{
		"response_type": {"code"},
		"client_id":     {"spa"},
		"redirect_uri":  {"https://app/cb"},
		"scope":         {"openid"},
	}.Encode(), sessionCookie("user-1"))

	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_request", location.Query().Get("error"))
	assert.Empty(t, location.Query().Get("code"))
}

func TestSuspendAndResumeAfterLogin(t *testing.T) {
	f := setupFlow(t)
	f.createClient(t, &models.Client{
		ID:           "spa",
		Type:         models.ClientTypePublic,
		RequirePKCE:  true,
		RedirectURIs: "https://app/cb",
		GrantTypes:   "authorization_code",
	})

	_, challenge := pkcePair()

	// No session cookie: the attempt is suspended and the browser is sent to
	// the login page with a pointer back to the authorization endpoint.
	w := f.get("/oauth/authorize?" + url.Values{
		"response_type":         {"code"},
		"client_id":             {"spa"},
		"redirect_uri":          {"https://app/cb"},
		"scope":                 {"openid"},
		"state":                 {"xyz"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}.Encode())
	require.Equal(t, http.StatusFound, w.Code)

	location := w.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://auth.test/login?next="), "location: %s", location)
	parsed, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "https://auth.test/oauth/authorize", parsed.Query().Get("next"))

	var pendingID string
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == oidc.PendingCookieName {
			pendingID = cookie.Value
		}
	}
	require.NotEmpty(t, pendingID)

	// After login the browser returns with both the session cookie and the
	// pending cookie; the stored attempt resumes and produces a code.
	resumed := f.get("/oauth/authorize",
		sessionCookie("user-1"),
		&http.Cookie{Name: oidc.PendingCookieName, Value: pendingID})
	code, state := codeFromRedirect(t, resumed)
	assert.NotEmpty(t, code)
	assert.Equal(t, "xyz", state)

	// The stored attempt is single-use.
	again := f.get("/oauth/authorize",
		sessionCookie("user-1"),
		&http.Cookie{Name: oidc.PendingCookieName, Value: pendingID})
	assert.Equal(t, http.StatusBadRequest, again.Code)
}

func TestUnsupportedGrantType(t *testing.T) {
	f := setupFlow(t)

	resp := f.postToken(url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {"spa"},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var body models.OAuth2Error
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, models.ErrUnsupportedGrantType, body.Error)
}

func TestDiscoveryDocument(t *testing.T) {
	f := setupFlow(t)

	w := f.get("/.well-known/openid-configuration")
	require.Equal(t, http.StatusOK, w.Code)

	var doc oidc.DiscoveryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "https://auth.test", doc.Issuer)
	assert.Equal(t, "https://auth.test/oauth/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://auth.test/oauth/token", doc.TokenEndpoint)
	assert.Equal(t, "https://auth.test/.well-known/jwks.json", doc.JWKSURI)
	assert.Contains(t, doc.CodeChallengeMethodsSupported, "S256")
	assert.Equal(t, []string{"code"}, doc.ResponseTypesSupported)
}

func TestJWKSEndpoint(t *testing.T) {
	f := setupFlow(t)

	w := f.get("/.well-known/jwks.json")
	require.Equal(t, http.StatusOK, w.Code)

	var set map[string][]oidc.JWK
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	require.Len(t, set["keys"], 1)
	assert.Equal(t, "RSA", set["keys"][0].Kty)
	assert.Equal(t, "test-key", set["keys"][0].Kid)
}
