package config

import (
	"os"
	"strconv"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Uploads   UploadsConfig
	Converter ConverterConfig
	Gemini    GeminiConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
}

// UploadsConfig controls the temporary upload store. Uploads older than
// MaxAge are swept by the background cleaner.
type UploadsConfig struct {
	Dir      string
	MaxBytes int64
	MaxAge   time.Duration
}

type ConverterConfig struct {
	MaxPages int
	RefYear  int
}

// GeminiConfig is optional: the converter runs on heuristics alone when no
// API key is set.
type GeminiConfig struct {
	APIKey       string
	Model        string
	Timeout      time.Duration
	PagesPerCall int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
		},
		Uploads: UploadsConfig{
			Dir:      getEnv("UPLOADS_DIR", "tmp_uploads"),
			MaxBytes: int64(getEnvAsInt("UPLOADS_MAX_MB", 15)) << 20,
			MaxAge:   time.Duration(getEnvAsInt("UPLOADS_MAX_AGE_MINUTES", 60)) * time.Minute,
		},
		Converter: ConverterConfig{
			MaxPages: getEnvAsInt("CONVERTER_MAX_PAGES", 10),
			RefYear:  getEnvAsInt("CONVERTER_REF_YEAR", 0),
		},
		Gemini: GeminiConfig{
			APIKey:       getEnv("GEMINI_API_KEY", ""),
			Model:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:      time.Duration(getEnvAsInt("GEMINI_TIMEOUT_SECONDS", 60)) * time.Second,
			PagesPerCall: getEnvAsInt("GEMINI_PAGES_PER_CALL", 3),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
