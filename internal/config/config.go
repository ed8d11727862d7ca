package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-sourced option the application reads.
type Config struct {
	Env        string
	ListenAddr string

	DatabaseURL string
	JWTSecret   string

	// Generative AI collaborator
	AIAPIKey    string
	AIBaseURL   string
	AIModel     string
	AITimeout   time.Duration
	AIMaxTokens int

	// Prompt assembly bounds
	MaxContextLength int
	HistoryWindow    int

	// Knowledge base upload bound (bytes)
	MaxKnowledgeSize int
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		ListenAddr:       getEnv("LISTEN_ADDR", "0.0.0.0:8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("SESSION_SECRET"),
		AIAPIKey:         os.Getenv("AI_API_KEY"),
		AIBaseURL:        getEnv("AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
		AIModel:          getEnv("AI_MODEL", "gemini-2.5-flash"),
		AITimeout:        getDuration("AI_TIMEOUT", 30*time.Second),
		AIMaxTokens:      getInt("AI_MAX_TOKENS", 1000),
		MaxContextLength: getInt("MAX_CONTEXT_LENGTH", 12000),
		HistoryWindow:    getInt("HISTORY_WINDOW", 10),
		MaxKnowledgeSize: getInt("MAX_KNOWLEDGE_SIZE", 1<<20),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
