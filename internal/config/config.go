// Package config provides configuration helpers for voicedesk commands.
package config

import (
	"os"
	"time"
)

// DefaultHTTPPort is the media server listen port when PORT is unset.
const DefaultHTTPPort = "8080"

// Env returns the value of key, or fallback if unset or empty.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvDuration returns the duration value of key, or fallback if unset or unparsable.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// HTTPPort returns the HTTP listen port from PORT env var or default.
func HTTPPort() string {
	return Env("PORT", DefaultHTTPPort)
}

// PostgresDSN returns the reservation store DSN from DATABASE_URL.
// Empty means the in-memory store is used.
func PostgresDSN() string {
	return os.Getenv("DATABASE_URL")
}

// KafkaBrokers returns the Kafka broker list from KAFKA_BROKERS (comma-separated).
// Empty means the Kafka change-event sink is disabled.
func KafkaBrokers() string {
	return os.Getenv("KAFKA_BROKERS")
}
