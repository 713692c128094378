package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Create a new instance of the logger
// Configure it to log at the desired level
// and format it as JSON for structured logging
var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	environment := GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(logrus.DebugLevel)
	case "production":
		log.SetLevel(logrus.ErrorLevel)
	default:
		// Default to info level for other environments
		log.SetLevel(logrus.InfoLevel)
	}
}

// Config holds the immutable application configuration, loaded once from
// environment variables and passed into each component at construction.
type Config struct {
	// Server configuration
	Port int    `json:"port"`
	Host string `json:"host"`

	// Issuer identity and collaborator endpoints
	Issuer       string `json:"issuer"`        // e.g. https://auth.example.com
	LoginURL     string `json:"login_url"`     // external login UI
	DirectoryURL string `json:"directory_url"` // user directory service

	// Database configuration
	DatabaseDriver string `json:"database_driver"` // postgres or sqlite
	DatabaseURL    string `json:"database_url"`    // postgres DSN
	DatabasePath   string `json:"database_path"`   // sqlite file path

	// Identity token signing
	SigningKeyPath string `json:"signing_key_path"`
	SigningKeyID   string `json:"signing_key_id"`

	// Credential lifetimes
	CodeTTL        time.Duration `json:"code_ttl"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	IDTokenTTL     time.Duration `json:"id_token_ttl"`
	PendingTTL     time.Duration `json:"pending_ttl"`

	// Logging configuration
	LogLevel string `json:"log_level"`
}

// String returns a string representation of Config with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, Host: %s, Issuer: %s, LoginURL: %s, DirectoryURL: %s, DatabaseDriver: %s, DatabaseURL: %s, SigningKeyPath: %s, SigningKeyID: %s, CodeTTL: %s, AccessTokenTTL: %s, IDTokenTTL: %s, LogLevel: %s}",
		c.Port, c.Host, c.Issuer, c.LoginURL, c.DirectoryURL, c.DatabaseDriver,
		maskDatabaseURL(c.DatabaseURL), c.SigningKeyPath, c.SigningKeyID,
		c.CodeTTL, c.AccessTokenTTL, c.IDTokenTTL, c.LogLevel)
}

// maskDatabaseURL masks password in database URL
func maskDatabaseURL(dbURL string) string {
	if dbURL == "" {
		return ""
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "[REDACTED_INVALID_URL]"
	}

	if parsed.User != nil {
		// Replace password with [REDACTED]
		parsed.User = url.UserPassword(parsed.User.Username(), "[REDACTED]")
	}

	return parsed.String()
}

// LoadConfig reads the configuration from environment variables and returns a
// Config struct. It validates the issuer URL and returns an error if any
// required environment variable is missing or invalid.
func LoadConfig() (*Config, error) {
	log.Info("Loading configuration from environment variables")
	port, err := strconv.Atoi(GetEnvWithDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, err
	}

	issuer := GetEnvWithDefault("OIDC_ISSUER", "")
	if issuer == "" {
		return nil, errors.New("OIDC_ISSUER environment variable is required")
	}
	if _, err := url.ParseRequestURI(issuer); err != nil {
		return nil, fmt.Errorf("invalid OIDC_ISSUER format %q: %w", issuer, err)
	}
	// The issuer is used as a prefix when building endpoint URLs
	issuer = strings.TrimRight(issuer, "/")

	config := &Config{
		Port:           port,
		Host:           GetEnvWithDefault("APP_HOST", "localhost"),
		Issuer:         issuer,
		LoginURL:       GetEnvWithDefault("LOGIN_URL", issuer+"/login"),
		DirectoryURL:   GetEnvWithDefault("DIRECTORY_URL", ""),
		DatabaseDriver: GetEnvWithDefault("DB_DRIVER", "sqlite"),
		DatabaseURL:    GetEnvWithDefault("DATABASE_URL", ""),
		DatabasePath:   GetEnvWithDefault("DB_PATH", "auth.sqlite"),
		SigningKeyPath: GetEnvWithDefault("SIGNING_KEY_PATH", "oidc_signing_key.pem"),
		SigningKeyID:   GetEnvWithDefault("SIGNING_KEY_ID", "default"),
		CodeTTL:        time.Duration(GetEnvAsType("CODE_TTL_MINUTES", 10)) * time.Minute,
		AccessTokenTTL: time.Duration(GetEnvAsType("ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		IDTokenTTL:     time.Duration(GetEnvAsType("ID_TOKEN_TTL_MINUTES", 10)) * time.Minute,
		PendingTTL:     time.Duration(GetEnvAsType("PENDING_AUTH_TTL_MINUTES", 15)) * time.Minute,
		LogLevel:       GetEnvWithDefault("LOG_LEVEL", "info"),
	}
	log.Infof("Configuration loaded: %s", config.String())
	return config, nil
}

// Helper to get environment with default values
func GetEnvWithDefault(key, defaultValue string) string {
	log.Tracef("Getting environment variable: %s", key)
	value := os.Getenv(key)
	if value == "" {
		log.Warnf("Environment variable %s not set, using default value: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvAsType retrieves an environment variable and converts it to the specified type
// using generic type handling.
func GetEnvAsType[T any](key string, defaultValue T) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result T
	switch any(result).(type) {
	case int:
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return any(intValue).(T)
	case string:
		return any(value).(T)
	case bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return any(boolValue).(T)
	default:
		return defaultValue // Fallback for unsupported types
	}
}
