// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Store   StoreConfig
	Sync    SyncConfig
	Gateway GatewayConfig
	Auth    AuthConfig
	Server  ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StoreConfig holds local data storage configuration.
type StoreConfig struct {
	DataPath string
}

// SyncConfig holds sync orchestration configuration.
type SyncConfig struct {
	Interval     time.Duration // interval between automatic syncs (default: 5m)
	Debounce     time.Duration // quiet period after a local change before upload (default: 3s)
	SuccessDecay time.Duration // how long "success" shows before reverting to idle (default: 2s)
	ErrorDecay   time.Duration // how long "error" shows before reverting to idle (default: 3s)
}

// GatewayConfig holds remote replica gateway configuration.
type GatewayConfig struct {
	// Mode selects the transport: "simulated" or "http".
	Mode string
	// BaseURL of the replica server, required in http mode.
	BaseURL string
	// Simulated transport tuning.
	UploadLatencyMin    time.Duration // default: 1s
	UploadLatencyMax    time.Duration // default: 3s
	DownloadLatencyMin  time.Duration // default: 800ms
	DownloadLatencyMax  time.Duration // default: 2s
	UploadFailureRate   float64       // default: 0.10
	DownloadFailureRate float64       // default: 0.05
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key for access tokens (32 bytes)
	AccessTokenKey []byte
	// Access token lifetime
	AccessTokenDuration time.Duration // e.g., 24h
}

// ServerConfig holds replica server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for local data storage")

	// Sync flags
	syncInterval := flag.String("sync-interval", "", "Interval between automatic syncs (default: 5m)")
	syncDebounce := flag.String("sync-debounce", "", "Quiet period before uploading local changes (default: 3s)")

	// Gateway flags
	gatewayMode := flag.String("gateway-mode", "", "Replica gateway mode: simulated or http (default: simulated)")
	gatewayURL := flag.String("gateway-url", "", "Base URL of the replica server (http mode)")

	// Auth flags
	accessTokenDuration := flag.String("access-token-duration", "", "Access token lifetime (e.g., 24h)")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Gateway: GatewayConfig{
			Mode:                getConfigValue(*gatewayMode, "GATEWAY_MODE", "simulated"),
			BaseURL:             getConfigValue(*gatewayURL, "GATEWAY_URL", ""),
			UploadFailureRate:   getFloatConfigValue("", "GATEWAY_UPLOAD_FAILURE_RATE", 0.10),
			DownloadFailureRate: getFloatConfigValue("", "GATEWAY_DOWNLOAD_FAILURE_RATE", 0.05),
		},
		Auth: AuthConfig{
			AccessTokenKey: nil, // Set by auth.LoadOrGenerateKey in main
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
	}

	// Parse durations.
	durations := []struct {
		dst      *time.Duration
		flagVal  string
		envKey   string
		fallback string
		name     string
	}{
		{&cfg.Sync.Interval, *syncInterval, "SYNC_INTERVAL", "5m", "sync interval"},
		{&cfg.Sync.Debounce, *syncDebounce, "SYNC_DEBOUNCE", "3s", "sync debounce"},
		{&cfg.Sync.SuccessDecay, "", "SYNC_SUCCESS_DECAY", "2s", "success decay"},
		{&cfg.Sync.ErrorDecay, "", "SYNC_ERROR_DECAY", "3s", "error decay"},
		{&cfg.Gateway.UploadLatencyMin, "", "GATEWAY_UPLOAD_LATENCY_MIN", "1s", "upload latency min"},
		{&cfg.Gateway.UploadLatencyMax, "", "GATEWAY_UPLOAD_LATENCY_MAX", "3s", "upload latency max"},
		{&cfg.Gateway.DownloadLatencyMin, "", "GATEWAY_DOWNLOAD_LATENCY_MIN", "800ms", "download latency min"},
		{&cfg.Gateway.DownloadLatencyMax, "", "GATEWAY_DOWNLOAD_LATENCY_MAX", "2s", "download latency max"},
		{&cfg.Auth.AccessTokenDuration, *accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h", "access token duration"},
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s", "read timeout"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", "write timeout"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", "idle timeout"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagVal, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, raw, err)
		}
		*d.dst = parsed
	}

	// Expand and validate the data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Store.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Gateway.Mode {
	case "simulated":
	case "http":
		if c.Gateway.BaseURL == "" {
			return errors.New("GATEWAY_URL is required in http mode")
		}
	default:
		return fmt.Errorf("invalid gateway mode: %s (must be simulated or http)", c.Gateway.Mode)
	}

	if c.Gateway.UploadFailureRate < 0 || c.Gateway.UploadFailureRate > 1 {
		return fmt.Errorf("upload failure rate must be within [0, 1], got %v", c.Gateway.UploadFailureRate)
	}
	if c.Gateway.DownloadFailureRate < 0 || c.Gateway.DownloadFailureRate > 1 {
		return fmt.Errorf("download failure rate must be within [0, 1], got %v", c.Gateway.DownloadFailureRate)
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync interval must be positive")
	}
	if c.Sync.Debounce <= 0 {
		return errors.New("sync debounce must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "ReadWell", "data")

	expanded, err := expandPath(c.Store.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Store.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
