package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment
// variables. These are populated at startup by LoadConfig.
var (
	// WebPort is the port the JSON API listens on.
	WebPort string

	// RefreshInterval is the delay between synthesis runs.
	RefreshInterval time.Duration

	// HTTPTimeout bounds every outbound fetcher request.
	HTTPTimeout time.Duration

	// MorphoGraphQLURL is the Morpho Blue API endpoint.
	MorphoGraphQLURL string

	// PendleBaseURL is the Pendle v1 core API base.
	PendleBaseURL string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Endpoints and timings have working defaults; anything
// explicitly set must parse or startup fails.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	MorphoGraphQLURL = getEnvOrDefault("MORPHO_GRAPHQL_URL", "https://blue-api.morpho.org/graphql")
	PendleBaseURL = getEnvOrDefault("PENDLE_BASE_URL", "https://api-v2.pendle.finance/core/v1")

	RefreshInterval, err = getEnvAsDuration("REFRESH_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}

	HTTPTimeout, err = getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return err
	}

	log.Debug().
		Str("WebPort", WebPort).
		Dur("RefreshInterval", RefreshInterval).
		Dur("HTTPTimeout", HTTPTimeout).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnvOrDefault retrieves a string environment variable, falling back to a
// default when unset.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration.
// Accepts Go duration syntax ("10m") or bare seconds ("600").
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(valueStr); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, errors.New("environment variable " + key + " must be a duration or seconds, got: " + valueStr)
}
