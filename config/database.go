package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() {
	var err error

	environment := strings.ToLower(os.Getenv("ENVIRONMENT"))
	debugSQL := strings.ToLower(os.Getenv("DEBUG_SQL"))

	// In production, suppress SQL logs unless explicitly re-enabled via DEBUG_SQL=true.
	logLevel := logger.Info
	if environment == "production" && debugSQL != "true" {
		logLevel = logger.Warn
	}

	DB, err = OpenDB(dialectorFromEnv(), logLevel)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	log.Println("Database connected successfully")
}

// OpenDB opens a gorm handle for the given dialector. Unique-index violations
// are translated to gorm.ErrDuplicatedKey so callers can detect them without
// knowing the driver.
func OpenDB(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(
			log.New(LogWriter, "\r\n", log.LstdFlags),
			logger.Config{LogLevel: level},
		),
	}
	return gorm.Open(dialector, cfg)
}

func dialectorFromEnv() gorm.Dialector {
	if strings.ToLower(os.Getenv("DB_DRIVER")) == "sqlite" {
		path := os.Getenv("DB_DATABASE")
		if path == "" {
			path = "pln-staging.db"
		}
		return sqlite.Open(path)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		os.Getenv("DB_USERNAME"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_DATABASE"),
	)
	return mysql.Open(dsn)
}
