// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseDriver string
	DatabaseDSN    string

	IEMBaseURL    string
	FetchTimeout  time.Duration
	FetchAttempts int
	FetchBackoff  time.Duration

	// Places enrichment configuration.
	PlacesAPIKey    string
	PlacesEnabled   bool
	PlacesBaseURL   string
	PlacesTimeout   time.Duration
	PlacesCacheTTL  time.Duration
	PlacesCacheSize int

	// Optional Kafka publishing of upserted alerts.
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	fetchTimeout, err := durationOrDefault("FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	fetchBackoff, err := durationOrDefault("FETCH_BACKOFF", 2*time.Second)
	if err != nil {
		return nil, err
	}
	placesTimeout, err := durationOrDefault("PLACES_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	placesCacheTTL, err := durationOrDefault("PLACES_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := durationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	fetchAttempts, err := intOrDefault("FETCH_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	placesCacheSize, err := intOrDefault("PLACES_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	placesKey := os.Getenv("PLACES_API_KEY")
	placesEnabled := placesKey != ""
	if v := os.Getenv("PLACES_ENABLED"); v != "" {
		placesEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseDriver: envOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),

		IEMBaseURL:    envOrDefault("IEM_BASE_URL", "https://mesonet.agron.iastate.edu/cgi-bin/request/gis/watchwarn.py"),
		FetchTimeout:  fetchTimeout,
		FetchAttempts: fetchAttempts,
		FetchBackoff:  fetchBackoff,

		PlacesAPIKey:    placesKey,
		PlacesEnabled:   placesEnabled,
		PlacesBaseURL:   envOrDefault("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api"),
		PlacesTimeout:   placesTimeout,
		PlacesCacheTTL:  placesCacheTTL,
		PlacesCacheSize: placesCacheSize,

		KafkaBrokers:   parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "alert-upserts"),
		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.IEMBaseURL == "" {
		return nil, errors.New("IEM_BASE_URL is required")
	}
	if cfg.PlacesEnabled && cfg.PlacesAPIKey == "" {
		return nil, errors.New("PLACES_ENABLED is true but PLACES_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func intOrDefault(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
