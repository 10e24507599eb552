// Package config loads and validates the service configuration from the
// environment.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/inference"
)

// Registry modes
const (
	RegistryModeLive     = "live"     // query the open-data APIs per request
	RegistryModeSnapshot = "snapshot" // serve from a periodically downloaded copy
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes, uploads included
	MaxHeaderSize     int64 // Maximum header size in bytes

	InferenceBackend     string
	Backends             []entities.BackendName // resolved from InferenceBackend
	RemoteInferenceURL   string
	RemoteInferenceToken string
	LocalInferenceURL    string
	BackendTimeout       time.Duration

	RegistryMode     string
	RegistryURL      string
	PricesURL        string
	SocrataAppToken  string
	DatasetTimeout   time.Duration
	RegistryCacheTTL time.Duration
	SnapshotDir      string
	SnapshotSchedule string // gocron At() times, e.g. "06:00;18:00"

	AlternativesLimit    int
	EnrichWorkers        int
	InteractionTablePath string // optional JSON table replacing the built-in one
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               env,
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 100*1024*1024),
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 10*1024*1024),
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1024*1024),

		InferenceBackend:     strings.TrimSpace(getEnvWithDefault("INFERENCE_BACKEND", inference.ModeAuto)),
		RemoteInferenceURL:   os.Getenv("REMOTE_INFERENCE_URL"),
		RemoteInferenceToken: os.Getenv("REMOTE_INFERENCE_TOKEN"),
		LocalInferenceURL:    getEnvWithDefault("LOCAL_INFERENCE_URL", "http://127.0.0.1:8001/v1/extract"),
		BackendTimeout:       getDurationEnvWithDefault("BACKEND_TIMEOUT", inference.DefaultTimeout),

		RegistryMode:     strings.ToLower(getEnvWithDefault("REGISTRY_MODE", RegistryModeLive)),
		RegistryURL:      getEnvWithDefault("REGISTRY_URL", "https://www.datos.gov.co/resource/i7cb-raxc.json"),
		PricesURL:        getEnvWithDefault("PRICES_URL", "https://www.datos.gov.co/resource/3he6-m866.json"),
		SocrataAppToken:  os.Getenv("SOCRATA_APP_TOKEN"),
		DatasetTimeout:   getDurationEnvWithDefault("DATASET_TIMEOUT", 30*time.Second),
		RegistryCacheTTL: getDurationEnvWithDefault("REGISTRY_CACHE_TTL", 6*time.Hour),
		SnapshotDir:      getEnvWithDefault("SNAPSHOT_DIR", "files"),
		SnapshotSchedule: getEnvWithDefault("SNAPSHOT_SCHEDULE", "06:00;18:00"),

		AlternativesLimit: getIntEnvWithDefault("ALTERNATIVES_LIMIT", 5),
		EnrichWorkers:     getIntEnvWithDefault("ENRICH_WORKERS", 4),

		InteractionTablePath: os.Getenv("INTERACTION_TABLE"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateRange(cfg.LogRetentionWeeks, 1, 52); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if cfg.MaxLogFileSize < 1024*1024 || cfg.MaxLogFileSize > 1024*1024*1024 {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: must be between 1MB and 1GB, got: %d bytes", cfg.MaxLogFileSize)
	}

	if err := validateBackends(cfg); err != nil {
		return fmt.Errorf("invalid INFERENCE_BACKEND: %w", err)
	}

	if cfg.BackendTimeout <= 0 {
		return fmt.Errorf("invalid BACKEND_TIMEOUT: must be positive, got: %s", cfg.BackendTimeout)
	}

	if err := validateRegistry(cfg); err != nil {
		return fmt.Errorf("invalid REGISTRY_MODE: %w", err)
	}

	if err := validateRange(cfg.AlternativesLimit, 0, 50); err != nil {
		return fmt.Errorf("invalid ALTERNATIVES_LIMIT: %w", err)
	}

	if err := validateRange(cfg.EnrichWorkers, 1, 64); err != nil {
		return fmt.Errorf("invalid ENRICH_WORKERS: %w", err)
	}

	if cfg.InteractionTablePath != "" {
		if _, err := os.Stat(cfg.InteractionTablePath); err != nil {
			return fmt.Errorf("invalid INTERACTION_TABLE: %w", err)
		}
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1024 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1024 and 65535, got %d", portNum)
	}

	return nil
}

// validateAddress accepts loopback, private and unspecified addresses
func validateAddress(address string) error {
	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %q", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

func validateLogLevel(logLevel string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, logLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %q", validLevels, logLevel)
	}
	return nil
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

func validateRange(v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("must be between %d and %d, got: %d", lo, hi, v)
	}
	return nil
}

// validateBackends resolves the backend list and requires an endpoint for
// every selected backend. An unknown mode is never replaced by a default.
func validateBackends(cfg *Config) error {
	backends, err := inference.ParseBackendMode(cfg.InferenceBackend)
	if err != nil {
		return err
	}

	auto := cfg.InferenceBackend == inference.ModeAuto
	selected := make([]entities.BackendName, 0, len(backends))
	for _, b := range backends {
		var raw string
		switch b {
		case entities.BackendRemote:
			raw = cfg.RemoteInferenceURL
		case entities.BackendLocal:
			raw = cfg.LocalInferenceURL
		}
		// auto falls through to the next backend when one has no endpoint
		if auto && strings.TrimSpace(raw) == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s backend endpoint: %w", b, err)
		}
		selected = append(selected, b)
	}
	if len(selected) == 0 {
		return fmt.Errorf("no inference backend endpoint configured for mode %q", cfg.InferenceBackend)
	}

	cfg.Backends = selected
	return nil
}

func validateRegistry(cfg *Config) error {
	if cfg.RegistryMode != RegistryModeLive && cfg.RegistryMode != RegistryModeSnapshot {
		return fmt.Errorf("must be %q or %q, got: %q", RegistryModeLive, RegistryModeSnapshot, cfg.RegistryMode)
	}
	if err := validateURL(cfg.RegistryURL); err != nil {
		return fmt.Errorf("REGISTRY_URL: %w", err)
	}
	if err := validateURL(cfg.PricesURL); err != nil {
		return fmt.Errorf("PRICES_URL: %w", err)
	}
	if cfg.DatasetTimeout <= 0 {
		return fmt.Errorf("DATASET_TIMEOUT must be positive, got: %s", cfg.DatasetTimeout)
	}
	if cfg.RegistryMode == RegistryModeSnapshot {
		if strings.TrimSpace(cfg.SnapshotDir) == "" {
			return fmt.Errorf("SNAPSHOT_DIR cannot be empty in snapshot mode")
		}
		if err := validateSchedule(cfg.SnapshotSchedule); err != nil {
			return fmt.Errorf("SNAPSHOT_SCHEDULE: %w", err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("URL must be absolute http(s), got: %q", raw)
	}
	return nil
}

// validateSchedule checks a semicolon separated list of HH:MM times
func validateSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	for _, at := range strings.Split(schedule, ";") {
		if _, err := time.Parse("15:04", strings.TrimSpace(at)); err != nil {
			return fmt.Errorf("invalid time %q, expected HH:MM", at)
		}
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		return -1
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		return -1
	}
	return defaultValue
}

// getDurationEnvWithDefault reads a Go duration ("90s", "2m")
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		return -1
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT", "ADDRESS", "ENV", "LOG_LEVEL", "LOG_DIR", "LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE", "MAX_REQUEST_BODY", "MAX_HEADER_SIZE",
		"INFERENCE_BACKEND", "REMOTE_INFERENCE_URL", "REMOTE_INFERENCE_TOKEN",
		"LOCAL_INFERENCE_URL", "BACKEND_TIMEOUT",
		"REGISTRY_MODE", "REGISTRY_URL", "PRICES_URL", "SOCRATA_APP_TOKEN",
		"DATASET_TIMEOUT", "REGISTRY_CACHE_TTL", "SNAPSHOT_DIR", "SNAPSHOT_SCHEDULE",
		"ALTERNATIVES_LIMIT", "ENRICH_WORKERS", "INTERACTION_TABLE",
	}
}
