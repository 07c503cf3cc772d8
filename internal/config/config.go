package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr           string
	JWTSecret          string
	JWTIssuer          string
	PublicBaseURL      string
	RedisAddr          string
	RedisPassword      string
	SnapshotPath       string
	SnapshotInterval   time.Duration
	BootstrapAdmin     string
	BootstrapAdminName string
}

func Load() Config {
	return Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		JWTSecret:          getenv("JWT_SECRET", "dev-secret"),
		JWTIssuer:          getenv("JWT_ISSUER", "schoolledger-identity"),
		PublicBaseURL:      getenv("PUBLIC_BASE_URL", "http://127.0.0.1:8080"),
		RedisAddr:          getenv("REDIS_ADDR", ""),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		SnapshotPath:       getenv("SNAPSHOT_PATH", ""),
		SnapshotInterval:   getenvDuration("SNAPSHOT_INTERVAL", 15*time.Minute),
		BootstrapAdmin:     getenv("BOOTSTRAP_ADMIN", ""),
		BootstrapAdminName: getenv("BOOTSTRAP_ADMIN_NAME", "System Administrator"),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
