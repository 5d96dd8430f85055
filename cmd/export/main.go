package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thiago-paim/twitter-scraping/internal/database"
	"github.com/thiago-paim/twitter-scraping/internal/services"
	"github.com/thiago-paim/twitter-scraping/internal/store"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Exports the posts of the given jobs to a timestamped CSV file.
func main() {
	jobsFlag := flag.String("jobs", "", "Comma-separated scrape job ids (required)")
	outFlag := flag.String("out", "", "Output file path (default: timestamped file in EXPORT_PATH)")
	flag.Parse()

	log := logrus.New()

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	jobIDs, err := parseJobIDs(*jobsFlag)
	if err != nil {
		log.WithError(err).Fatal("Invalid -jobs value")
	}

	if err := database.Connect(database.LoadConfig()); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	outPath := *outFlag
	if outPath == "" {
		dir := os.Getenv("EXPORT_PATH")
		if dir == "" {
			dir = "."
		}
		outPath = fmt.Sprintf("%s/%s posts.csv", dir, time.Now().Format("2006-01-02 15:04:05"))
	}

	f, err := os.Create(outPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to create output file")
	}
	defer f.Close()

	exporter := services.NewExporter(store.New(database.DB))
	if err := exporter.ExportJobs(f, jobIDs); err != nil {
		log.WithError(err).Fatal("Export failed")
	}

	log.WithField("path", outPath).Info("Export completed")
}

func parseJobIDs(value string) ([]uint, error) {
	if value == "" {
		return nil, fmt.Errorf("no job ids given")
	}
	var ids []uint
	for _, part := range strings.Split(value, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad job id %q: %w", part, err)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
