package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coreproject/auth-server/internal/models"
)

// Out-of-band client provisioning. The protocol treats the client table as
// read-only; this is the administrative path that writes it.
func main() {
	dbPath := flag.String("db", "auth.sqlite", "SQLite database path")
	clientID := flag.String("id", "", "Client ID (generated when empty)")
	name := flag.String("name", "Development Client", "Client display name")
	clientType := flag.String("type", models.ClientTypeConfidential, "Client type: confidential or public")
	redirectURIs := flag.String("redirect-uris", "http://localhost:3000/callback", "Space-separated allowed redirect URIs")
	scopes := flag.String("scopes", "openid profile email", "Space-separated allowed scopes")
	grantTypes := flag.String("grants", "authorization_code refresh_token", "Space-separated allowed grant types")
	requirePKCE := flag.Bool("require-pkce", false, "Require PKCE for this client")
	flag.Parse()

	if *clientType != models.ClientTypeConfidential && *clientType != models.ClientTypePublic {
		log.Fatalf("Invalid client type %q (must be confidential or public)", *clientType)
	}

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(&models.Client{}); err != nil {
		log.Fatal("Failed to migrate client table:", err)
	}

	id := *clientID
	if id == "" {
		id = uuid.New().String()
	}

	var existing models.Client
	if err := db.Where("id = ?", id).First(&existing).Error; err == nil {
		log.Fatalf("Client %s already exists", id)
	}

	client := models.Client{
		ID:           id,
		Name:         *name,
		Type:         *clientType,
		RedirectURIs: strings.TrimSpace(*redirectURIs),
		Scopes:       strings.TrimSpace(*scopes),
		GrantTypes:   strings.TrimSpace(*grantTypes),
		RequirePKCE:  *requirePKCE,
	}

	var secret string
	switch *clientType {
	case models.ClientTypeConfidential:
		// A confidential client always carries a secret.
		secret = uuid.New().String()
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("Failed to hash secret:", err)
		}
		client.Secret = string(hash)
	case models.ClientTypePublic:
		// A public client has no secret and must use PKCE.
		client.RequirePKCE = true
	}

	if err := db.Create(&client).Error; err != nil {
		log.Fatal("Failed to create client:", err)
	}

	fmt.Printf("OAuth client created!\n")
	fmt.Printf("Client ID: %s\n", client.ID)
	if secret != "" {
		fmt.Printf("Client Secret: %s (shown only once)\n", secret)
	}
	fmt.Printf("Type: %s\n", client.Type)
	fmt.Printf("Redirect URIs: %s\n", client.RedirectURIs)
	fmt.Printf("Scopes: %s\n", client.Scopes)
	fmt.Printf("Grant Types: %s\n", client.GrantTypes)
	fmt.Printf("Require PKCE: %t\n", client.RequirePKCE)
}
