package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	PublicBaseURL  string
	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string

	StylizeBaseURL    string
	StylizeAPIKey     string
	AllowedAssetHosts []string
	CORSOrigins       []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	DBMaxConns int32
	DBMinConns int32

	// Admission knobs; zero values fall back to package defaults.
	RateLimitPerWindow int
	RateLimitWindowMin int
	GlobalActiveLimit  int
	UserActiveLimit    int

	// BypassAdmission disables every admission check. Local/dev only.
	BypassAdmission bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	appEnv := getEnv("APP_ENV", "development")
	cfg := &Config{
		AppEnv:             appEnv,
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		StylizeBaseURL:     getEnv("STYLIZE_BASE_URL", "https://api.stylize.example.com/v1"),
		StylizeAPIKey:      os.Getenv("STYLIZE_API_KEY"),
		AllowedAssetHosts:  splitHosts(getEnv("ALLOWED_ASSET_HOSTS", "cdn.stylize.example.com,assets.stylize.example.com")),
		CORSOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		DBMaxConns:         int32(getEnvInt("DB_MAX_CONNS", 10)),
		DBMinConns:         int32(getEnvInt("DB_MIN_CONNS", 1)),
		RateLimitPerWindow: getEnvInt("RATE_LIMIT_PER_WINDOW", 0),
		RateLimitWindowMin: getEnvInt("RATE_LIMIT_WINDOW_MINUTES", 0),
		GlobalActiveLimit:  getEnvInt("GLOBAL_ACTIVE_JOB_LIMIT", 0),
		UserActiveLimit:    getEnvInt("USER_ACTIVE_JOB_LIMIT", 0),
		BypassAdmission:    appEnv == "local" || getEnv("BYPASS_ADMISSION", "") == "true",
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func splitHosts(raw string) []string {
	parts := strings.Split(raw, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		if h := strings.ToLower(strings.TrimSpace(p)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
