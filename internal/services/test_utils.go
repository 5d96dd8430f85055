package services

import (
	"os"
	"testing"

	"github.com/thiago-paim/twitter-scraping/internal/database"
	"github.com/thiago-paim/twitter-scraping/internal/models"

	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	// Set test environment variables
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_PORT", "5432")
	os.Setenv("DB_USER", "postgres")
	os.Setenv("DB_PASSWORD", "")
	os.Setenv("DB_NAME", "twitter_scraping_test")
	os.Setenv("DB_SSLMODE", "disable")

	// Load test database configuration
	config := database.LoadConfig()

	// Connect to test database
	err := database.Connect(config)
	if err != nil {
		t.Skipf("Skipping test - PostgreSQL test database not available: %v", err)
	}

	db := database.DB

	// Run migrations to ensure schema is up to date
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	// Clean up any existing test data; posts reference authors and jobs,
	// so they go first
	db.Exec("DELETE FROM posts")
	db.Exec("DELETE FROM scrape_jobs")
	db.Exec("DELETE FROM authors")

	return db
}
