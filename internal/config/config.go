package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	AccountCurrency        string
	DatabasePath           string
	DefaultLeverage        float64
	FreeBuyingPowerPercent float64
	SettlementScanSchedule string
	TradingDayRollSchedule string
	LogLevel               string
	Port                   int
	DevMode                bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		AccountCurrency:        getEnv("ACCOUNT_CURRENCY", "USD"),
		DatabasePath:           getEnv("DATABASE_PATH", "./data/journal.db"),
		DefaultLeverage:        getEnvAsFloat("DEFAULT_LEVERAGE", 2),
		FreeBuyingPowerPercent: getEnvAsFloat("FREE_BUYING_POWER_PERCENT", 0),
		SettlementScanSchedule: getEnv("SETTLEMENT_SCAN_SCHEDULE", "0 * * * * *"),
		TradingDayRollSchedule: getEnv("TRADING_DAY_ROLL_SCHEDULE", "0 0 0 * * *"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		Port:                   getEnvAsInt("GO_PORT", 8001),
		DevMode:                getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.AccountCurrency == "" {
		return fmt.Errorf("ACCOUNT_CURRENCY is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.DefaultLeverage < 1 {
		return fmt.Errorf("DEFAULT_LEVERAGE must be at least 1, got %v", c.DefaultLeverage)
	}
	if c.FreeBuyingPowerPercent < 0 || c.FreeBuyingPowerPercent >= 1 {
		return fmt.Errorf("FREE_BUYING_POWER_PERCENT must be in [0,1), got %v", c.FreeBuyingPowerPercent)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
