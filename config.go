package main

import (
	"log"
	"os"
	"strconv"
	"time"
)

const (
	defaultAPIURL      = "http://localhost:3000/api"
	defaultSessionDB   = "session.db"
	defaultPageSize    = 2
	defaultHTTPTimeout = 10 * time.Second
)

type Config struct {
	APIURL      string
	SessionDB   string
	SessionKey  string
	PageSize    int
	HTTPTimeout time.Duration
	LogFile     string
}

// loadConfig reads the environment. godotenv.Load must run first for
// values from .env to be visible.
func loadConfig() Config {
	cfg := Config{
		APIURL:      getEnv("BLOG_API_URL", defaultAPIURL),
		SessionDB:   getEnv("BLOG_SESSION_DB", defaultSessionDB),
		SessionKey:  os.Getenv("BLOG_SESSION_KEY"),
		PageSize:    getEnvInt("BLOG_PAGE_SIZE", defaultPageSize),
		HTTPTimeout: getEnvDuration("BLOG_HTTP_TIMEOUT", defaultHTTPTimeout),
		LogFile:     os.Getenv("BLOG_LOG_FILE"),
	}

	if cfg.SessionKey == "" {
		log.Println("WARNING: BLOG_SESSION_KEY not set, session token stored unsealed")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("WARNING: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("WARNING: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
