package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverSupabase = "supabase"
	StorageDriverS3       = "s3"
)

type Config struct {
	Port      string
	DBUrl     string
	JWTSecret string
	AppEnv    string
	LogLevel  string

	RedisURL     string
	PresenceTTL  time.Duration
	KafkaBrokers []string
	KafkaTopic   string

	StorageDriver      string
	SupabaseURL        string
	SupabaseBucket     string
	SupabaseServiceKey string
	S3Region           string
	S3Bucket           string
	S3Endpoint         string
	S3PublicRead       bool

	MessageRatePerMinute int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DBUrl:                getEnv("DB_URL", ""),
		JWTSecret:            jwtSecret,
		AppEnv:               normalizeEnv(getEnv("APP_ENV", "production")),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		RedisURL:             getEnv("REDIS_URL", ""),
		PresenceTTL:          time.Duration(getEnvInt("PRESENCE_TTL_SECONDS", 90)) * time.Second,
		KafkaBrokers:         splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "messaging.events"),
		StorageDriver:        strings.ToLower(strings.TrimSpace(getEnv("STORAGE_DRIVER", ""))),
		SupabaseURL:          getEnv("SUPABASE_URL", ""),
		SupabaseBucket:       getEnv("SUPABASE_BUCKET", ""),
		SupabaseServiceKey:   getEnv("SUPABASE_SERVICE_KEY", ""),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3PublicRead:         getEnvBool("S3_PUBLIC_READ", false),
		MessageRatePerMinute: getEnvInt("MESSAGE_RATE_PER_MINUTE", 60),
	}

	switch cfg.StorageDriver {
	case "", StorageDriverSupabase, StorageDriverS3:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

func (c *Config) StorageConfigured() bool {
	switch c.StorageDriver {
	case StorageDriverSupabase:
		return c.SupabaseURL != "" && c.SupabaseBucket != "" && c.SupabaseServiceKey != ""
	case StorageDriverS3:
		return c.S3Bucket != ""
	default:
		return false
	}
}
