/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config provides the configuration management system for TerraStore.

The configuration system supports multiple sources with clear precedence:
 1. Command-line flags (highest priority)
 2. Environment variables
 3. Configuration file
 4. Default values (lowest priority)

Configuration File Format:
The configuration file uses TOML format for readability and ease of use.

Example configuration file:

	# TerraStore Configuration
	data_dir = "/var/lib/terrastore"
	min_lon = 116.0
	min_lat = 39.0
	max_lon = 117.5
	max_lat = 41.0
	cell_size = 0.01
	cache_capacity = 500
	pool_mode = "CACHED"
	pool_max_workers = 64
	log_level = "info"
	log_json = false

Environment Variables:
  - TERRA_DATA_DIR: Directory for the terrain database
  - TERRA_MIN_LON / TERRA_MIN_LAT / TERRA_MAX_LON / TERRA_MAX_LAT: Region bounds
  - TERRA_CELL_SIZE: Grid cell size in degrees
  - TERRA_CACHE_CAPACITY: Number of grid cells held in cache
  - TERRA_POOL_MODE: Worker pool mode (FIXED or CACHED)
  - TERRA_POOL_MIN_WORKERS / TERRA_POOL_MAX_WORKERS: Worker pool sizing
  - TERRA_POOL_MAX_TASKS: Worker pool queue bound
  - TERRA_POOL_IDLE_SECS: Idle worker timeout in seconds
  - TERRA_METADATA_DSN: MySQL DSN for the platform metadata database
  - TERRA_METRICS_PORT: Port for the Prometheus metrics endpoint (0 disables)
  - TERRA_LOG_LEVEL: Log level (debug, info, warn, error)
  - TERRA_LOG_JSON: Enable JSON logging (true/false)
  - TERRA_CONFIG_FILE: Path to configuration file
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Environment variable names for configuration.
const (
	EnvDataDir        = "TERRA_DATA_DIR"
	EnvMinLon         = "TERRA_MIN_LON"
	EnvMinLat         = "TERRA_MIN_LAT"
	EnvMaxLon         = "TERRA_MAX_LON"
	EnvMaxLat         = "TERRA_MAX_LAT"
	EnvCellSize       = "TERRA_CELL_SIZE"
	EnvCacheCapacity  = "TERRA_CACHE_CAPACITY"
	EnvPoolMode       = "TERRA_POOL_MODE"
	EnvPoolMinWorkers = "TERRA_POOL_MIN_WORKERS"
	EnvPoolMaxWorkers = "TERRA_POOL_MAX_WORKERS"
	EnvPoolMaxTasks   = "TERRA_POOL_MAX_TASKS"
	EnvPoolIdleSecs   = "TERRA_POOL_IDLE_SECS"
	EnvMetadataDSN    = "TERRA_METADATA_DSN"
	EnvMetricsPort    = "TERRA_METRICS_PORT"
	EnvHealthPort     = "TERRA_HEALTH_PORT"
	EnvLogLevel       = "TERRA_LOG_LEVEL"
	EnvLogJSON        = "TERRA_LOG_JSON"
	EnvConfigFile     = "TERRA_CONFIG_FILE"
)

// GetDefaultDataDir returns the default directory for terrain storage.
// For root users, it uses /var/lib/terrastore (Filesystem Hierarchy
// Standard). For non-root users, it uses ~/.local/share/terrastore
// (XDG Base Directory).
func GetDefaultDataDir() string {
	if os.Getuid() == 0 {
		return "/var/lib/terrastore"
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "terrastore")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "share", "terrastore")
	}
	return "./data"
}

// Default configuration file paths (searched in order).
var DefaultConfigPaths = []string{
	"/etc/terrastore/terrastore.conf",
	"$HOME/.config/terrastore/terrastore.conf",
	"./terrastore.conf",
}

// Config holds all configuration values for TerraStore.
type Config struct {
	// Storage configuration
	DataDir string `toml:"data_dir" json:"data_dir"`

	// Region bounds and grid geometry
	MinLon   float64 `toml:"min_lon" json:"min_lon"`
	MinLat   float64 `toml:"min_lat" json:"min_lat"`
	MaxLon   float64 `toml:"max_lon" json:"max_lon"`
	MaxLat   float64 `toml:"max_lat" json:"max_lat"`
	CellSize float64 `toml:"cell_size" json:"cell_size"`

	// CacheCapacity is the number of grid cells held in cache.
	CacheCapacity int `toml:"cache_capacity" json:"cache_capacity"`

	// Worker pool configuration
	PoolMode       string `toml:"pool_mode" json:"pool_mode"`
	PoolMinWorkers int    `toml:"pool_min_workers" json:"pool_min_workers"` // 0 = hardware concurrency
	PoolMaxWorkers int    `toml:"pool_max_workers" json:"pool_max_workers"`
	PoolMaxTasks   int    `toml:"pool_max_tasks" json:"pool_max_tasks"`
	PoolIdleSecs   int    `toml:"pool_idle_secs" json:"pool_idle_secs"`

	// MetadataDSN is the MySQL DSN for the platform metadata database.
	// Empty disables the metadata pool.
	MetadataDSN string `toml:"metadata_dsn" json:"-"`

	// MetricsPort serves the Prometheus endpoint. 0 disables it.
	MetricsPort int `toml:"metrics_port" json:"metrics_port"`

	// HealthPort serves the health check endpoints. 0 disables them.
	HealthPort int `toml:"health_port" json:"health_port"`

	// Logging configuration
	LogLevel string `toml:"log_level" json:"log_level"`
	LogJSON  bool   `toml:"log_json" json:"log_json"`

	// Metadata
	ConfigFile string `toml:"-" json:"-"` // Path to loaded config file
}

// DefaultConfig returns a Config with sensible default values. The
// default bounds cover the reference simulation region.
func DefaultConfig() *Config {
	return &Config{
		DataDir:        GetDefaultDataDir(),
		MinLon:         116.0,
		MinLat:         39.0,
		MaxLon:         117.5,
		MaxLat:         41.0,
		CellSize:       0.01,
		CacheCapacity:  500,
		PoolMode:       "CACHED",
		PoolMinWorkers: 0, // hardware concurrency
		PoolMaxWorkers: 1024,
		PoolMaxTasks:   1024,
		PoolIdleSecs:   60,
		MetadataDSN:    "",
		MetricsPort:    0,
		HealthPort:     0,
		LogLevel:       "info",
		LogJSON:        false,
	}
}

// Manager handles configuration loading, validation, and access.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

// NewManager creates a new configuration manager with default values.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Global manager instance for convenience.
var globalManager = NewManager()

// Global returns the global configuration manager.
func Global() *Manager {
	return globalManager
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to prevent external modification
	cfg := *m.config
	return &cfg
}

// Set updates the configuration.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "data_dir cannot be empty")
	}
	if c.MinLon >= c.MaxLon {
		errs = append(errs, fmt.Sprintf("min_lon %g must be less than max_lon %g", c.MinLon, c.MaxLon))
	}
	if c.MinLat >= c.MaxLat {
		errs = append(errs, fmt.Sprintf("min_lat %g must be less than max_lat %g", c.MinLat, c.MaxLat))
	}
	if c.CellSize <= 0 {
		errs = append(errs, fmt.Sprintf("cell_size must be positive, got %g", c.CellSize))
	}

	switch strings.ToUpper(c.PoolMode) {
	case "FIXED", "CACHED":
		// Valid modes
	default:
		errs = append(errs, fmt.Sprintf("invalid pool_mode: %s (must be FIXED or CACHED)", c.PoolMode))
	}
	if c.PoolMinWorkers < 0 {
		errs = append(errs, fmt.Sprintf("pool_min_workers cannot be negative, got %d", c.PoolMinWorkers))
	}
	if c.PoolMaxWorkers > 0 && c.PoolMinWorkers > c.PoolMaxWorkers {
		errs = append(errs, "pool_min_workers cannot exceed pool_max_workers")
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Sprintf("invalid metrics_port: %d (must be 0-65535)", c.MetricsPort))
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		errs = append(errs, fmt.Sprintf("invalid health_port: %d (must be 0-65535)", c.HealthPort))
	}
	if c.HealthPort != 0 && c.HealthPort == c.MetricsPort {
		errs = append(errs, "health_port and metrics_port cannot be the same")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		// Valid log levels
	default:
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// LoadFromFile loads configuration from a TOML file.
func (m *Manager) LoadFromFile(path string) error {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := parseTOML(string(data), cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// This merges with existing configuration (env vars override file values).
func (m *Manager) LoadFromEnv() {
	cfg := m.Get()

	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvMinLon); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinLon = f
		}
	}
	if v := os.Getenv(EnvMinLat); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinLat = f
		}
	}
	if v := os.Getenv(EnvMaxLon); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxLon = f
		}
	}
	if v := os.Getenv(EnvMaxLat); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxLat = f
		}
	}
	if v := os.Getenv(EnvCellSize); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CellSize = f
		}
	}
	if v := os.Getenv(EnvCacheCapacity); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheCapacity = n
		}
	}
	if v := os.Getenv(EnvPoolMode); v != "" {
		cfg.PoolMode = v
	}
	if v := os.Getenv(EnvPoolMinWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolMinWorkers = n
		}
	}
	if v := os.Getenv(EnvPoolMaxWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolMaxWorkers = n
		}
	}
	if v := os.Getenv(EnvPoolMaxTasks); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolMaxTasks = n
		}
	}
	if v := os.Getenv(EnvPoolIdleSecs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolIdleSecs = n
		}
	}
	if v := os.Getenv(EnvMetadataDSN); v != "" {
		cfg.MetadataDSN = v
	}
	if v := os.Getenv(EnvMetricsPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
	if v := os.Getenv(EnvHealthPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthPort = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		cfg.LogJSON = strings.ToLower(v) == "true" || v == "1"
	}

	m.Set(cfg)
}

// FindConfigFile searches for a configuration file in default locations.
// Returns the path to the first file found, or empty string if none found.
func FindConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(EnvConfigFile); envPath != "" {
		if _, err := os.Stat(os.ExpandEnv(envPath)); err == nil {
			return os.ExpandEnv(envPath)
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		expandedPath := os.ExpandEnv(path)
		if _, err := os.Stat(expandedPath); err == nil {
			return expandedPath
		}
	}

	return ""
}

// Load loads configuration from all sources with proper precedence.
// Order: defaults -> config file -> environment variables
// Command-line flags should be applied after calling this function.
func (m *Manager) Load() error {
	// Start with defaults (already set in NewManager)

	// Try to load from config file
	configPath := FindConfigFile()
	if configPath != "" {
		if err := m.LoadFromFile(configPath); err != nil {
			return err
		}
	}

	// Apply environment variables (override file values)
	m.LoadFromEnv()

	return nil
}

// parseTOML is a simple TOML parser for our configuration format.
// It handles the subset of TOML we need without external dependencies.
func parseTOML(data string, cfg *Config) error {
	lines := strings.Split(data, "\n")

	for lineNum, line := range lines {
		// Remove comments
		if idx := strings.Index(line, "#"); idx != -1 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)

		// Skip empty lines
		if line == "" {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("line %d: invalid syntax: %s", lineNum+1, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes from string values
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		// Apply value to config
		if err := applyConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineNum+1, err)
		}
	}

	return nil
}

// applyConfigValue applies a key-value pair to the configuration.
func applyConfigValue(cfg *Config, key, value string) error {
	parseFloat := func(field string) (float64, error) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value: %s", field, value)
		}
		return f, nil
	}
	parseInt := func(field string) (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value: %s", field, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "data_dir":
		cfg.DataDir = value
	case "min_lon":
		cfg.MinLon, err = parseFloat(key)
	case "min_lat":
		cfg.MinLat, err = parseFloat(key)
	case "max_lon":
		cfg.MaxLon, err = parseFloat(key)
	case "max_lat":
		cfg.MaxLat, err = parseFloat(key)
	case "cell_size":
		cfg.CellSize, err = parseFloat(key)
	case "cache_capacity":
		cfg.CacheCapacity, err = parseInt(key)
	case "pool_mode":
		cfg.PoolMode = value
	case "pool_min_workers":
		cfg.PoolMinWorkers, err = parseInt(key)
	case "pool_max_workers":
		cfg.PoolMaxWorkers, err = parseInt(key)
	case "pool_max_tasks":
		cfg.PoolMaxTasks, err = parseInt(key)
	case "pool_idle_secs":
		cfg.PoolIdleSecs, err = parseInt(key)
	case "metadata_dsn":
		cfg.MetadataDSN = value
	case "metrics_port":
		cfg.MetricsPort, err = parseInt(key)
	case "health_port":
		cfg.HealthPort, err = parseInt(key)
	case "log_level":
		cfg.LogLevel = value
	case "log_json":
		cfg.LogJSON = strings.ToLower(value) == "true" || value == "1"
	default:
		// Ignore unknown keys for forward compatibility
	}

	return err
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("TerraStore Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Data Dir:       %s\n", c.DataDir))
	sb.WriteString(fmt.Sprintf("  Bounds:         lon [%g, %g], lat [%g, %g]\n", c.MinLon, c.MaxLon, c.MinLat, c.MaxLat))
	sb.WriteString(fmt.Sprintf("  Cell Size:      %g deg\n", c.CellSize))
	sb.WriteString(fmt.Sprintf("  Cache Capacity: %d cells\n", c.CacheCapacity))
	sb.WriteString(fmt.Sprintf("  Pool Mode:      %s\n", c.PoolMode))
	sb.WriteString(fmt.Sprintf("  Pool Workers:   %d-%d\n", c.PoolMinWorkers, c.PoolMaxWorkers))
	if c.MetadataDSN != "" {
		sb.WriteString("  Metadata DB:    configured\n")
	}
	if c.MetricsPort > 0 {
		sb.WriteString(fmt.Sprintf("  Metrics Port:   %d\n", c.MetricsPort))
	}
	sb.WriteString(fmt.Sprintf("  Log Level:      %s\n", c.LogLevel))
	sb.WriteString(fmt.Sprintf("  Log JSON:       %v\n", c.LogJSON))
	if c.ConfigFile != "" {
		sb.WriteString(fmt.Sprintf("  Config File:    %s\n", c.ConfigFile))
	}
	return sb.String()
}

// ToTOML returns the configuration as a TOML string.
func (c *Config) ToTOML() string {
	var sb strings.Builder
	sb.WriteString("# TerraStore Configuration File\n")
	sb.WriteString("# Generated by TerraStore\n\n")
	sb.WriteString("# Storage\n")
	sb.WriteString(fmt.Sprintf("data_dir = \"%s\"\n\n", c.DataDir))
	sb.WriteString("# Region bounds and grid geometry\n")
	sb.WriteString(fmt.Sprintf("min_lon = %g\n", c.MinLon))
	sb.WriteString(fmt.Sprintf("min_lat = %g\n", c.MinLat))
	sb.WriteString(fmt.Sprintf("max_lon = %g\n", c.MaxLon))
	sb.WriteString(fmt.Sprintf("max_lat = %g\n", c.MaxLat))
	sb.WriteString(fmt.Sprintf("cell_size = %g\n", c.CellSize))
	sb.WriteString(fmt.Sprintf("cache_capacity = %d\n\n", c.CacheCapacity))
	sb.WriteString("# Worker pool\n")
	sb.WriteString(fmt.Sprintf("pool_mode = \"%s\"\n", c.PoolMode))
	sb.WriteString(fmt.Sprintf("pool_min_workers = %d  # 0 = hardware concurrency\n", c.PoolMinWorkers))
	sb.WriteString(fmt.Sprintf("pool_max_workers = %d\n", c.PoolMaxWorkers))
	sb.WriteString(fmt.Sprintf("pool_max_tasks = %d\n", c.PoolMaxTasks))
	sb.WriteString(fmt.Sprintf("pool_idle_secs = %d\n\n", c.PoolIdleSecs))
	if c.MetadataDSN != "" {
		sb.WriteString("# Platform metadata database\n")
		sb.WriteString(fmt.Sprintf("metadata_dsn = \"%s\"\n\n", c.MetadataDSN))
	}
	sb.WriteString("# Observability\n")
	sb.WriteString(fmt.Sprintf("metrics_port = %d  # 0 disables the endpoint\n", c.MetricsPort))
	sb.WriteString(fmt.Sprintf("health_port = %d  # 0 disables the endpoints\n\n", c.HealthPort))
	sb.WriteString("# Logging\n")
	sb.WriteString(fmt.Sprintf("log_level = \"%s\"\n", c.LogLevel))
	sb.WriteString(fmt.Sprintf("log_json = %v\n", c.LogJSON))
	return sb.String()
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	// Expand environment variables
	path = os.ExpandEnv(path)

	// Create directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, []byte(c.ToTOML()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
