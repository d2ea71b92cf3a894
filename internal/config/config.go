package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	AWSRegion           string
	SQSMovementQueueURL string

	JWTSecret     string
	JWTExpiration time.Duration

	// Stale session reaper schedule. Sessions open longer than StaleAge are
	// invalidated on each sweep.
	ReaperInterval time.Duration
	StaleAge       time.Duration
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	reaperIntervalHours, _ := strconv.Atoi(getEnv("REAPER_INTERVAL_HOURS", "24"))
	staleAgeHours, _ := strconv.Atoi(getEnv("STALE_SESSION_AGE_HOURS", "24"))

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "parking_enforcement"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		AWSRegion:           getEnv("AWS_REGION", "eu-west-2"),
		SQSMovementQueueURL: getEnv("SQS_MOVEMENT_QUEUE_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", "change-me-before-deploying"),
		JWTExpiration: time.Duration(jwtExpHours) * time.Hour,

		ReaperInterval: time.Duration(reaperIntervalHours) * time.Hour,
		StaleAge:       time.Duration(staleAgeHours) * time.Hour,
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable '%s' not set, using default: '%s'", key, fallback)
	return fallback
}
