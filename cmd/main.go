package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/config"
	"github.com/coreproject/auth-server/internal/database"
	"github.com/coreproject/auth-server/internal/directory"
	"github.com/coreproject/auth-server/internal/middleware"
	"github.com/coreproject/auth-server/internal/models"
	"github.com/coreproject/auth-server/internal/oidc"
)

var (
	db            *gorm.DB
	configuration *config.Config
	oidcService   *oidc.Service
)

func main() {
	// Load environment variables
	loadDotenvFile()

	// Initialize logger
	setUpLogger()

	// Load configuration
	configuration = loadConfig()

	// Initialize database connection
	db = setupDatabase(configuration)

	// Load the identity token signing key
	signingKey, err := oidc.LoadSigningKey(configuration.SigningKeyPath)
	checkPanicErr(err)

	// Wire the user directory collaborator
	dir := setupDirectory(configuration)

	oidcService = oidc.NewService(db, configuration, dir, signingKey, log.StandardLogger())

	// Initialize Gin router
	var router *gin.Engine = setupRouter()

	// Start the server
	log.Infof("Starting server on %s:%d", configuration.Host, configuration.Port)
	router.Run(fmt.Sprintf("%v:%d", configuration.Host, configuration.Port))
}

// checkPanicErr checks if an error occurred and panics if it did
func checkPanicErr(err error) {
	if err != nil {
		panic(err)
	}
}

// loadDotenvFile loads environment variables from a .env file
// If the file is not found, it will log a warning and use system environment variables
func loadDotenvFile() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}
}

// setUpLogger initializes the logger with a JSON formatter and sets the log level based on the environment
func setUpLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	environment := config.GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(log.DebugLevel)
	case "production":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig loads the application configuration from environment variables
// It returns a Config struct or panics if there is an error
func loadConfig() *config.Config {
	conf, err := config.LoadConfig()
	checkPanicErr(err)
	return conf
}

// setupDatabase initializes the database connection and migrates the
// protocol tables
func setupDatabase(conf *config.Config) *gorm.DB {
	conn, err := database.InitDatabase(database.DatabaseConfig{
		Driver: conf.DatabaseDriver,
		URL:    conf.DatabaseURL,
		Path:   conf.DatabasePath,
	})
	checkPanicErr(err)
	checkPanicErr(database.Migrate(conn))
	seedDatabase(conn)
	return conn
}

// seedDatabase registers a demo client when the client table is empty, so a
// fresh development instance can run the full flow without provisioning.
// Production instances provision clients via scripts/create_client.go.
func seedDatabase(conn *gorm.DB) {
	var count int64
	if err := conn.Model(&models.Client{}).Count(&count).Error; err != nil {
		log.WithError(err).Warn("Could not check for existing clients, skipping seed")
		return
	}
	if count > 0 {
		return
	}

	demo := &models.Client{
		ID:           "demo-client",
		Name:         "Demo Client",
		Type:         models.ClientTypePublic,
		RedirectURIs: "http://localhost:3000/callback",
		Scopes:       "openid profile email",
		GrantTypes:   "authorization_code refresh_token",
		RequirePKCE:  true,
	}
	if err := conn.Create(demo).Error; err != nil {
		log.WithError(err).Warn("Failed to seed demo client")
		return
	}
	log.WithField("client_id", demo.ID).Info("Seeded demo client (empty client table)")
}

// setupDirectory wires the user directory collaborator. Without a configured
// directory service a development instance falls back to an in-memory
// directory with a single seeded user.
func setupDirectory(conf *config.Config) directory.Directory {
	if conf.DirectoryURL != "" {
		return directory.NewHTTPDirectory(conf.DirectoryURL)
	}

	log.Warn("DIRECTORY_URL not set, using in-memory directory with a seeded development user")
	return directory.NewMemoryDirectory(&directory.User{
		Sub:           "dev-user",
		Username:      "dev",
		Email:         "dev@example.com",
		EmailVerified: true,
		Name:          "Dev User",
		GivenName:     "Dev",
		FamilyName:    "User",
		LastLogin:     time.Now(),
	})
}

// setupRouter initializes the Gin router and sets up the routes
// It returns the configured router
func setupRouter() *gin.Engine {
	// Initialize Gin router
	router := gin.Default()

	// Define routes
	setupRoutes(router)

	return router
}

// setupRoutes defines the routes for the Gin router
func setupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", healthCheckHandler)

	// Protocol endpoints
	router.GET("/oauth/authorize", oidcService.HandleAuthorize)
	router.POST("/oauth/token", oidcService.HandleToken)

	userinfo := router.Group("/oauth")
	userinfo.Use(middleware.BearerAuth(oidcService.Tokens()), middleware.RequireScope("openid"))
	{
		userinfo.GET("/userinfo", oidcService.HandleUserInfo)
	}

	// Discovery endpoints
	router.GET("/.well-known/openid-configuration", oidcService.HandleDiscovery)
	router.GET("/.well-known/jwks.json", oidcService.HandleJWKS)
}

// healthCheckHandler handles the health check endpoint
func healthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "auth-server",
	})
}
