package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Marketplace credentials. Login is best-effort; an empty username
	// just means the run scrapes anonymously.
	SteamUsername string
	SteamPassword string
	SessionCookie string // steamLoginSecure value
	ScrapingKey   string // upstream scraping-service API key

	MarketURL string
	DataDir   string

	ProxyList         []string
	RetryBudget       int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	RequestsPerSecond float64

	DatabaseURL string // optional MySQL mirror, empty disables it
	Port        string
	Headless    bool
}

func Load() *Config {
	return &Config{
		SteamUsername: getEnv("STEAM_USERNAME", ""),
		SteamPassword: getEnv("STEAM_PASSWORD", ""),
		SessionCookie: getEnv("STEAM_LOGIN_SECURE", ""),
		ScrapingKey:   getEnv("SCRAPING_API_KEY", ""),

		MarketURL: getEnv("MARKET_URL", "https://steamcommunity.com/market/"),
		DataDir:   getEnv("DATA_DIR", "data"),

		ProxyList:         splitList(getEnv("PROXY_LIST", "")),
		RetryBudget:       getEnvInt("RETRY_BUDGET", 3),
		BackoffBase:       time.Duration(getEnvInt("BACKOFF_BASE_SECONDS", 4)) * time.Second,
		BackoffCap:        time.Duration(getEnvInt("BACKOFF_CAP_SECONDS", 10)) * time.Second,
		RequestsPerSecond: getEnvFloat("REQUESTS_PER_SECOND", 1.0),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Headless:    getEnv("HEADLESS", "true") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
