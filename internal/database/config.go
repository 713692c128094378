package database

import (
	"fmt"
	"net/url"
)

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	// Driver specifies the database driver (postgres, sqlite)
	Driver string

	// PostgreSQL-specific configuration: a full DSN/URL
	URL string

	// SQLite-specific configuration
	Path string
}

// String returns a string representation with credentials masked
func (c *DatabaseConfig) String() string {
	masked := c.URL
	if parsed, err := url.Parse(c.URL); err == nil && parsed.User != nil {
		parsed.User = url.UserPassword(parsed.User.Username(), "[REDACTED]")
		masked = parsed.String()
	}
	return fmt.Sprintf("DatabaseConfig{Driver: %s, URL: %s, Path: %s}", c.Driver, masked, c.Path)
}

// DSN builds a Data Source Name string based on the driver
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres", "postgresql":
		return c.URL
	case "sqlite", "":
		return c.Path
	default:
		return ""
	}
}
