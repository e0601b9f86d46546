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

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Storage       StorageConfig
	Transcription TranscriptionConfig
	Jobs          JobsConfig
	App           AppConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	MaxUploadBytes int64
	SSEKeepAlive   time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	DSN      string

	MaxConns    int
	MinConns    int
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects the key-value store backend. Namespace scopes every
// key so several deployments can share one Redis or database.
type StorageConfig struct {
	Backend    string // redis, sqlite, postgres
	Namespace  string
	SQLitePath string
	SessionTTL time.Duration
	EventBus   string // memory, redis
}

type TranscriptionConfig struct {
	BaseURL       string
	Model         string
	APIKey        string
	AccessToken   string
	UseADC        bool // Google application default credentials
	Timeout       time.Duration
	RatePerMinute int
	CacheTTL      time.Duration
}

type JobsConfig struct {
	ReconcileSchedule string
	StaleAfter        time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 512)) << 20,
			SSEKeepAlive:   getEnvAsDuration("SSE_KEEPALIVE", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "reelnotes"),
			DSN:      getEnv("DB_DSN", ""),

			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLife: getEnvAsDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdle: getEnvAsDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Backend:    getEnv("STORE_BACKEND", "redis"),
			Namespace:  getEnv("STORE_NAMESPACE", "reelnotes"),
			SQLitePath: getEnv("SQLITE_PATH", "reelnotes.sqlite"),
			SessionTTL: getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
			EventBus:   getEnv("EVENT_BUS", "memory"),
		},
		Transcription: TranscriptionConfig{
			BaseURL:       getEnv("TRANSCRIBE_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:         getEnv("TRANSCRIBE_MODEL", "gemini-2.5-flash"),
			APIKey:        getEnv("TRANSCRIBE_API_KEY", ""),
			AccessToken:   getEnv("TRANSCRIBE_ACCESS_TOKEN", ""),
			UseADC:        getEnvAsBool("TRANSCRIBE_USE_ADC", false),
			Timeout:       getEnvAsDuration("TRANSCRIBE_TIMEOUT", 5*time.Minute),
			RatePerMinute: getEnvAsInt("TRANSCRIBE_RATE_PER_MINUTE", 10),
			CacheTTL:      getEnvAsDuration("TRANSCRIBE_CACHE_TTL", 7*24*time.Hour),
		},
		Jobs: JobsConfig{
			ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "0 */10 * * * *"),
			StaleAfter:        getEnvAsDuration("RECONCILE_STALE_AFTER", 30*time.Minute),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Storage.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case "postgres":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("DB_DSN or DB_HOST is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Storage.EventBus {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown EVENT_BUS %q", c.Storage.EventBus)
	}

	if c.Transcription.BaseURL == "" {
		return fmt.Errorf("TRANSCRIBE_BASE_URL is required")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must name at least one origin")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}

	return nil
}

// PostgresDSN returns DB_DSN when set, otherwise a DSN built from the parts.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
