package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/thiago-paim/twitter-scraping/internal/database"
	"github.com/thiago-paim/twitter-scraping/internal/models"
	"github.com/thiago-paim/twitter-scraping/internal/services"
	"github.com/thiago-paim/twitter-scraping/internal/source"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Creates one scrape job from flags and runs it to completion in the
// foreground, bypassing the scheduler. Useful for one-off crawls and for
// smoke-testing a scraper sidecar.
func main() {
	username := flag.String("username", "", "Account to scrape (required)")
	twitterID := flag.String("twitter-id", "", "Target post id for a thread crawl (optional)")
	since := flag.String("since", "", "Lower time bound, YYYY-MM-DD (optional)")
	until := flag.String("until", "", "Upper time bound, YYYY-MM-DD (optional)")
	includeReplies := flag.Bool("include-replies", false, "Crawl the reply thread of the target post")
	flag.Parse()

	log := logrus.New()

	if *username == "" {
		log.Fatal("-username is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	if err := database.Connect(database.LoadConfig()); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	job := models.ScrapeJob{
		Username:       *username,
		TwitterID:      *twitterID,
		IncludeReplies: *includeReplies,
		Status:         models.JobStatusCreated,
	}
	if t, ok := parseDay(log, *since); ok {
		job.Since = t
	}
	if t, ok := parseDay(log, *until); ok {
		job.Until = t
	}

	st := store.New(database.DB)
	if err := st.CreateJob(&job); err != nil {
		log.WithError(err).Fatal("Failed to create scrape job")
	}

	scraperURL := os.Getenv("SCRAPER_URL")
	if scraperURL == "" {
		scraperURL = "http://localhost:8081"
	}

	ledger := services.NewRequestLedger(st, log)
	recorder := services.NewRecorder(st, log)
	runner := services.NewRunner(source.NewHTTPSource(scraperURL), recorder, ledger, log, nil)

	if err := ledger.Start(&job); err != nil {
		log.WithError(err).Fatal("Failed to start scrape job")
	}
	runner.Run(context.Background(), job)

	final, err := st.GetJob(job.ID)
	if err != nil {
		log.WithError(err).Fatal("Failed to reload scrape job")
	}
	log.WithFields(logrus.Fields{
		"req_id": final.ID,
		"status": final.Status,
	}).Info("Scrape job settled")
}

func parseDay(log *logrus.Logger, value string) (*time.Time, bool) {
	if value == "" {
		return nil, false
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		log.WithError(err).Fatalf("Invalid date %q", value)
	}
	return &t, true
}
