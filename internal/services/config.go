package services

import (
	"os"
	"strconv"
)

// Config holds the scraping engine settings
type Config struct {
	// MaxConcurrency caps the number of jobs in status "started" at any
	// one time
	MaxConcurrency int
	// AdmitSchedule is the cron spec for the periodic admission sweep
	AdmitSchedule string
}

// LoadConfig reads the engine settings from environment variables
func LoadConfig() Config {
	cfg := Config{
		MaxConcurrency: 2,
		AdmitSchedule:  "@every 1m",
	}

	if v := os.Getenv("SCRAPE_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}
	if v := os.Getenv("SCRAPE_ADMIT_CRON"); v != "" {
		cfg.AdmitSchedule = v
	}

	return cfg
}
