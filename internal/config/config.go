// Package config reads server settings from the environment, loading a
// local .env file first when one exists.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// TCPAddr is the game transport listen address.
	TCPAddr string
	// HTTPAddr serves healthz, the room browse endpoint and /ws.
	HTTPAddr string
	// ReadTimeout is the per-read poll tick for connection workers.
	ReadTimeout time.Duration
	// DevLog switches zap to its development config.
	DevLog bool
}

func Load() Config {
	_ = godotenv.Load() // absent .env is fine

	return Config{
		TCPAddr:     getEnv("FLAP_TCP_ADDR", ":5555"),
		HTTPAddr:    getEnv("FLAP_HTTP_ADDR", ":8080"),
		ReadTimeout: getDuration("FLAP_READ_TIMEOUT_MS", 500*time.Millisecond),
		DevLog:      getBool("FLAP_LOG_DEV", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
