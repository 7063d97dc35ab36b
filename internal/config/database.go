package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ride_tracker/internal/logger"
	"ride_tracker/internal/models"
)

var (
	// DB is the globally accessible database handle
	DB *gorm.DB
)

// InitDB initializes the database connection using environment variables.
// DB_DRIVER selects postgres (default, with PostGIS) or sqlite for local
// development; both carry the same schema.
func InitDB() {
	// Load .env (if present)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found – relying on env vars")
	}

	driver := getEnv("DB_DRIVER", "postgres")

	gormCfg := &gorm.Config{
		Logger: gormlogger.New(logger.GormLogger(), gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		}),
	}

	var db *gorm.DB
	var err error

	switch driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(getEnv("DB_PATH", "tracker.db")), gormCfg)
	default:
		host := getEnv("DB_HOST", "localhost")
		port := getEnv("DB_PORT", "5432")
		user := getEnv("DB_USER", "postgres")
		password := getEnv("DB_PASSWORD", "password")
		dbname := getEnv("DB_NAME", "tracker")
		sslmode := getEnv("DB_SSLMODE", "disable")
		timezone := getEnv("DB_TIMEZONE", "UTC")

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			host, user, password, dbname, port, sslmode, timezone,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	}
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(&models.Ride{}, &models.RoutePoint{}, &models.PositionFix{})
	if err != nil {
		log.Fatalf("auto-migration failed: %v", err)
	}

	if driver != "sqlite" {
		// PostGIS carries the geometry column and its spatial index; the
		// relational columns stay the portable source of truth.
		db.Exec("CREATE EXTENSION IF NOT EXISTS postgis;")
		db.Exec("ALTER TABLE position_fixes ADD COLUMN IF NOT EXISTS geom geometry(Point,4326);")
		db.Exec("CREATE INDEX IF NOT EXISTS idx_position_fixes_geom ON position_fixes USING GIST (geom);")
	}

	// Assign to global
	DB = db
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return defaultValue
}

// GetDB returns the initialized DB handle
func GetDB() *gorm.DB {
	return DB
}
