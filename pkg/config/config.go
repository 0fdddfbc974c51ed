// Package config loads environment and JSON file configuration with
// explicit, listed defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// App is the process-level configuration, read from the environment.
type App struct {
	// DatabaseURL is the Postgres DSN; empty disables persistence.
	DatabaseURL string
	LogLevel    string
	MetricsPort int

	FeeRate      float64
	SlippageRate float64
}

// Defaults for App fields.
const (
	DefaultLogLevel     = "info"
	DefaultMetricsPort  = 9090
	DefaultFeeRate      = 0.001
	DefaultSlippageRate = 0.0005
)

// LoadEnv loads a .env file if it exists. A missing file is not an error;
// real environment variables always win.
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return nil
}

// LoadApp reads the process configuration from the environment, applying
// defaults for anything unset.
func LoadApp() (*App, error) {
	app := &App{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		MetricsPort:  DefaultMetricsPort,
		FeeRate:      DefaultFeeRate,
		SlippageRate: DefaultSlippageRate,
	}

	var err error
	if app.MetricsPort, err = getEnvInt("METRICS_PORT", DefaultMetricsPort); err != nil {
		return nil, err
	}
	if app.FeeRate, err = getEnvFloat("FEE_RATE", DefaultFeeRate); err != nil {
		return nil, err
	}
	if app.SlippageRate, err = getEnvFloat("SLIPPAGE_RATE", DefaultSlippageRate); err != nil {
		return nil, err
	}

	if app.FeeRate < 0 || app.SlippageRate < 0 {
		return nil, fmt.Errorf("fee and slippage rates must be non-negative")
	}
	return app, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, value, err)
	}
	return parsed, nil
}
