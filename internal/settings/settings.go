// Package settings loads process configuration from the environment.
package settings

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Settings holds application configuration.
type Settings struct {
	Port           int
	DatabasePath   string
	CatalogDir     string // optional directory of extra MCU specs
	CatalogURL     string // optional remote catalog
	CatalogRefresh string // cron spec for CatalogURL
	FetchTimeout   time.Duration
	Heartbeat      time.Duration
	LogLevel       string
	DevMode        bool
}

// Load reads configuration from environment variables, after an optional
// .env. It does not validate: callers apply their overrides first and then
// call Validate.
func Load() *Settings {
	_ = godotenv.Load()

	s := &Settings{
		Port:           getEnvAsInt("MCUPLAN_PORT", 8080),
		DatabasePath:   getEnv("MCUPLAN_DB_PATH", "./data/mcuplan.db"),
		CatalogDir:     getEnv("MCUPLAN_CATALOG_DIR", ""),
		CatalogURL:     getEnv("MCUPLAN_CATALOG_URL", ""),
		CatalogRefresh: getEnv("MCUPLAN_CATALOG_REFRESH", "@every 10m"),
		FetchTimeout:   getEnvAsDuration("MCUPLAN_FETCH_TIMEOUT", 5*time.Second),
		Heartbeat:      getEnvAsDuration("MCUPLAN_HEARTBEAT", time.Minute),
		LogLevel:       getEnv("MCUPLAN_LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("MCUPLAN_DEV_MODE", false),
	}
	return s
}

// Validate checks ranges and the refresh schedule.
func (s *Settings) Validate() error {
	if s.DatabasePath == "" {
		return fmt.Errorf("MCUPLAN_DB_PATH is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("MCUPLAN_PORT %d out of range", s.Port)
	}
	if s.FetchTimeout <= 0 {
		return fmt.Errorf("MCUPLAN_FETCH_TIMEOUT must be positive")
	}
	if s.Heartbeat <= 0 {
		return fmt.Errorf("MCUPLAN_HEARTBEAT must be positive")
	}
	if s.CatalogURL != "" {
		if _, err := cron.ParseStandard(s.CatalogRefresh); err != nil {
			return fmt.Errorf("MCUPLAN_CATALOG_REFRESH: %w", err)
		}
	}
	return nil
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
