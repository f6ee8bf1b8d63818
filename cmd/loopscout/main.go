package main

import (
	"context"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stableyield/loopscout/internal/config"
	"github.com/stableyield/loopscout/internal/datafetcher"
	"github.com/stableyield/loopscout/internal/engine"
	"github.com/stableyield/loopscout/internal/logger"
	"github.com/stableyield/loopscout/internal/state"
	"github.com/stableyield/loopscout/internal/types"
	"github.com/stableyield/loopscout/internal/web"
)

const (
	DEFAULT_CONFIG_NAME    = "default"
	DEFAULT_CONFIG_VERSION = 1
)

// main is the entry point for the loopscout engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Loopscout yield engine starting...")

	// Database is optional: without DB_HOST the engine runs in-memory only.
	var runStore engine.RunStore
	var dbCheck func() error
	params := config.DefaultSynthesisParameters

	if os.Getenv("DB_HOST") != "" {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		params = loadOrSeedParameters()

		store, err := state.NewRunStore()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize run store")
		}
		runStore = store
		dbCheck = state.TestDBConnection
	} else {
		log.Info().Msg("DB_HOST not set, running without persistence")
	}

	// --- 2. Fetchers and Strategy Registry ---
	fetchers, err := datafetcher.NewFetchers(config.HTTPTimeout, config.MorphoGraphQLURL, config.PendleBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build protocol fetchers")
	}

	strategies, err := engine.BuildRegistry(fetchers.Morpho, fetchers.Pendle, params, config.FixedLoopSynthesisParameters)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build strategy registry")
	}

	eng, err := engine.NewEngine(strategies, runStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	// --- 3. Web Server ---
	webServer := web.NewWebServer(config.WebPort, eng, params, dbCheck)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Main Loop ---
	log.Info().Str("interval", config.RefreshInterval.String()).Msg("Starting synthesis loop")
	eng.RunLoop(context.Background(), config.RefreshInterval)
}

// loadOrSeedParameters loads the active synthesis parameters, seeding the
// compiled defaults on first run.
func loadOrSeedParameters() types.SynthesisParameters {
	loaded, err := state.LoadActiveSynthesisParameters(DEFAULT_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active synthesis parameters, using defaults and saving.")
		defaults := config.DefaultSynthesisParameters
		if _, err := state.SaveSynthesisParameters(defaults, DEFAULT_CONFIG_NAME, DEFAULT_CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default synthesis parameters.")
		}
		return defaults
	}
	log.Info().Msg("Synthesis parameters loaded successfully.")
	return *loaded
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
