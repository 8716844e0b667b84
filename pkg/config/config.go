package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LookupModeRedirect = "redirect"
	LookupModeJSON     = "lookup"
)

type Config struct {
	Port        string
	AppEnv      string
	BaseURL     string
	DatabaseURL string

	// BackendURL is where the edge and the CLI send backend traffic.
	BackendURL       string
	LookupMode       string
	ReservedPrefixes []string
	UpstreamTimeout  time.Duration

	TokenStoreURL    string
	TokenStoreSecret string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LogLevel string
	LogFile  string
}

func Load() *Config {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	return &Config{
		Port:             getEnv("PORT", "8080"),
		AppEnv:           getEnv("APP_ENV", "local"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL:      getEnv("DATABASE_URL", "file:db.sqlite"),
		BackendURL:       strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:1234"), "/"),
		LookupMode:       getLookupMode("LOOKUP_MODE"),
		ReservedPrefixes: getList("RESERVED_PREFIXES", []string{"_next", "api"}),
		UpstreamTimeout:  getDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		TokenStoreURL:    getEnv("TOKEN_STORE_URL", "file:session.sqlite"),
		TokenStoreSecret: getEnv("TOKEN_STORE_SECRET", "local-token-store-secret"),
		JWTSecret:        getEnv("JWT_SECRET", "secret"),
		AccessTokenTTL:   getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getLookupMode(key string) string {
	if strings.EqualFold(getEnv(key, LookupModeRedirect), LookupModeJSON) {
		return LookupModeJSON
	}
	return LookupModeRedirect
}
