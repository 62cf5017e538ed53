package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Security
	JWTSecret      string
	HandoffSecret  string
	SessionTTLDays int

	// Matchmaking
	LowAvailabilitySeconds int
	BotFallbackSeconds     int

	// Game flow
	ActionTimeoutSeconds  int
	DisplayTimeoutSeconds int
	StartingGraceMillis   int

	// Command rate limiting
	RateLimitWindowMillis int
	RateLimitMaxCommands  int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/hanakoi?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Security
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		HandoffSecret:  getEnv("HANDOFF_SECRET", ""),
		SessionTTLDays: getEnvInt("SESSION_TTL_DAYS", 7),

		// Matchmaking
		LowAvailabilitySeconds: getEnvInt("LOW_AVAILABILITY_SECONDS", 10),
		BotFallbackSeconds:     getEnvInt("BOT_FALLBACK_SECONDS", 15),

		// Game flow
		ActionTimeoutSeconds:  getEnvInt("ACTION_TIMEOUT_SECONDS", 30),
		DisplayTimeoutSeconds: getEnvInt("DISPLAY_TIMEOUT_SECONDS", 5),
		StartingGraceMillis:   getEnvInt("STARTING_GRACE_MILLIS", 500),

		// Command rate limiting
		RateLimitWindowMillis: getEnvInt("RATE_LIMIT_WINDOW_MS", 1000),
		RateLimitMaxCommands:  getEnvInt("RATE_LIMIT_MAX_COMMANDS", 10),
	}

	if cfg.Environment == "production" && cfg.HandoffSecret == "" {
		log.Fatal("HANDOFF_SECRET must be set in production")
	}
	if cfg.HandoffSecret == "" {
		cfg.HandoffSecret = "dev-handoff-secret"
		log.Println("[CONFIG] HANDOFF_SECRET not set, using development default")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
