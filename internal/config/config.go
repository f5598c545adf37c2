package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	APIKey string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	Grow    GrowConfig
	Morning MorningConfig
}

// GrowConfig configures the Grow payment gateway adapter.
type GrowConfig struct {
	BaseURL       string
	UserID        string
	PageCode      string
	WebhookSecret string
}

// MorningConfig configures the Morning invoicing adapter.
type MorningConfig struct {
	BaseURL   string
	APIKeyID  string
	APISecret string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "jobdeck"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		APIKey: strings.TrimSpace(getenv("API_KEY", "")),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "jobdeck"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Grow: GrowConfig{
			BaseURL:       getenv("GROW_BASE_URL", "https://sandbox.meshulam.co.il/api/light/server/1.0"),
			UserID:        strings.TrimSpace(getenv("GROW_USER_ID", "")),
			PageCode:      strings.TrimSpace(getenv("GROW_PAGE_CODE", "")),
			WebhookSecret: strings.TrimSpace(getenv("GROW_WEBHOOK_SECRET", "")),
		},
		Morning: MorningConfig{
			BaseURL:   getenv("MORNING_BASE_URL", "https://api.greeninvoice.co.il/api/v1"),
			APIKeyID:  strings.TrimSpace(getenv("MORNING_API_KEY_ID", "")),
			APISecret: strings.TrimSpace(getenv("MORNING_API_SECRET", "")),
		},
	}
}

var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewEnforcementHolder,
	),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
