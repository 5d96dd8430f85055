package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/thiago-paim/twitter-scraping/internal/database"
	"github.com/thiago-paim/twitter-scraping/internal/handlers"
	"github.com/thiago-paim/twitter-scraping/internal/services"
	"github.com/thiago-paim/twitter-scraping/internal/source"
	"github.com/thiago-paim/twitter-scraping/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(logrus.DebugLevel)
	}

	// Load database configuration
	dbConfig := database.LoadConfig()

	// Connect to database
	if err := database.Connect(dbConfig); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// The scraper sidecar supplies the raw post feeds
	scraperURL := os.Getenv("SCRAPER_URL")
	if scraperURL == "" {
		scraperURL = "http://localhost:8081"
	}
	src := source.NewHTTPSource(scraperURL)

	// Initialize and start background workers
	workerService := worker.NewWorkerService(database.DB, src, services.LoadConfig(), log)
	if err := workerService.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start background workers")
	}

	// Setup graceful shutdown
	setupGracefulShutdown(workerService, log)

	// Setup HTTP server
	setupServer(workerService, log)
}

func setupGracefulShutdown(workerService *worker.WorkerService, log *logrus.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Info("Received shutdown signal, gracefully shutting down...")

		// Stop background workers
		workerService.Stop()

		// Close database connection
		database.Close()

		log.Info("Shutdown complete")
		os.Exit(0)
	}()
}

func setupServer(workerService *worker.WorkerService, log *logrus.Logger) {
	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	r := gin.Default()

	// Initialize handlers
	requestsHandler := handlers.NewRequestsHandler(database.DB, workerService)

	// Health check
	r.GET("/health", requestsHandler.HealthCheck)

	// API routes
	api := r.Group("/api")
	{
		requests := api.Group("/requests")
		{
			requests.POST("", requestsHandler.CreateRequest)
			requests.GET("", requestsHandler.ListRequests)
			requests.GET("/:id", requestsHandler.GetRequest)
			requests.POST("/:id/start", requestsHandler.StartRequest)
			requests.GET("/:id/posts", requestsHandler.RequestPosts)
		}

		api.POST("/export", requestsHandler.Export)

		workerGroup := api.Group("/worker")
		{
			workerGroup.GET("/status", requestsHandler.WorkerStatus)
		}
	}

	// Get port from environment or default to 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Infof("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}
