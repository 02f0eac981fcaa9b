package main

import (
	"log"
	"os"

	"pln-staging-api/config"
	"pln-staging-api/middleware"
	"pln-staging-api/models"
	"pln-staging-api/routes"
	"pln-staging-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	config.ReloadMailerConfig()

	logFile, logWriter := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}
	defer config.Logger.Sync()

	// Initialize database
	config.InitDB()
	if os.Getenv("DB_AUTO_MIGRATE") != "false" {
		if err := models.AutoMigrate(config.DB); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
	}

	swordCfg := config.LoadSwordConfig()
	if err := os.MkdirAll(swordCfg.OriginalsPath, os.ModePerm); err != nil {
		log.Printf("Warning: Failed to create originals directory: %v", err)
	}

	// Set Gin mode
	if os.Getenv("GIN_MODE") == "release" || swordCfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logWriter
	gin.DefaultErrorWriter = logWriter

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	routes.SetupRoutes(router, routes.Dependencies{
		DB:        config.DB,
		Sword:     swordCfg,
		Terms:     services.NewTermsService(config.DB),
		Originals: services.NewFileOriginalStore(swordCfg.OriginalsPath),
		Health:    services.NewJournalHealthService(config.DB, nil, nil, config.OperatorEmails()),
	})

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	config.Logger.Infow("server starting",
		"port", port,
		"environment", swordCfg.Environment,
		"default_accept", swordCfg.DefaultAccept,
		"max_upload_bytes", swordCfg.MaxUploadBytes,
	)

	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
