package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	CORSOrigins    string
	RateLimitRPS   float64
	RateLimitBurst int

	// Square platform credentials and location scoping
	SquareAccessToken   string
	SquareLocationID    string
	SquareBaseURL       string
	SquareTimeout       time.Duration
	DefaultTeamMemberID string

	// Service catalog override (JSON array, see catalog.LoadJSON). Empty means
	// the built-in barbershop catalog.
	ServiceCatalogJSON string

	// Redis-backed inquiry cache (business hours / catalog / staff only)
	RedisAddr       string
	RedisPassword   string
	InquiryCacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 30),

		SquareAccessToken:   getEnv("SQUARE_ACCESS_TOKEN", ""),
		SquareLocationID:    getEnv("SQUARE_LOCATION_ID", "LCS4MXPZP8J3M"),
		SquareBaseURL:       getEnv("SQUARE_BASE_URL", ""),
		SquareTimeout:       getEnvAsDuration("SQUARE_TIMEOUT", 15*time.Second),
		DefaultTeamMemberID: getEnv("DEFAULT_TEAM_MEMBER_ID", "TMKzhB-WjsDff5rr"),

		ServiceCatalogJSON: getEnv("SERVICE_CATALOG_JSON", ""),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		InquiryCacheTTL: getEnvAsDuration("INQUIRY_CACHE_TTL", 5*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
