// Package config provides configuration management for the edge hub
// routing service. It handles loading configuration from environment
// variables with sensible defaults and loading the declarative route set
// from a JSON file.
//
// Environment Variables:
//
//   - PORT: Admin API port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - ROUTES_FILE: Path to the JSON routes file (default: ./routes.json)
//   - TLS_CERT / TLS_KEY: Optional TLS certificate pair for the admin API
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
//	routerCfg, err := config.LoadRouterConfig(cfg.RoutesFile)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/vvv37912/iotedge/internal/routing"
)

// Config holds all configuration values for the routing service. All
// fields correspond to environment variables that override the defaults.
type Config struct {
	Port       string // Admin API port number
	LogLevel   string // Logging level (debug, info, warn, error)
	RoutesFile string // Path to the JSON routes file
	TLSCert    string // TLS certificate path (optional)
	TLSKey     string // TLS key path (optional)
}

// Load creates a new Config instance with values loaded from environment
// variables. Call Validate() on the result before use.
func Load() *Config {
	return &Config{
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		RoutesFile: getEnv("ROUTES_FILE", "./routes.json"),
		TLSCert:    getEnv("TLS_CERT", ""),
		TLSKey:     getEnv("TLS_KEY", ""),
	}
}

// Validate ensures all configuration values are usable
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid PORT %q: must be a number between 1 and 65535", c.Port)
	}
	if c.RoutesFile == "" {
		return fmt.Errorf("ROUTES_FILE must not be empty")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT and TLS_KEY must be set together")
	}
	return nil
}

// LoadRouterConfig reads and validates the route set from a JSON file.
// A missing file is not an error: the hub starts with an empty table and
// routes arrive through the admin API.
func LoadRouterConfig(path string) (routing.RouterConfig, error) {
	var cfg routing.RouterConfig

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read routes file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse routes file %s: %w", path, err)
	}

	if err := ValidateRouterConfig(cfg); err != nil {
		return routing.RouterConfig{}, fmt.Errorf("routes file %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateRouterConfig checks the declarative route set for structural
// problems: duplicate or missing IDs, missing endpoints, negative
// priorities or TTLs. Condition syntax is the compiler's business, not
// ours.
func ValidateRouterConfig(cfg routing.RouterConfig) error {
	seen := make(map[string]bool, len(cfg.Routes))
	for i, route := range cfg.Routes {
		if err := validateRoute(route); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		if seen[route.ID] {
			return fmt.Errorf("duplicate route ID %q", route.ID)
		}
		seen[route.ID] = true
	}
	if cfg.Fallback != nil {
		if err := validateRoute(cfg.Fallback); err != nil {
			return fmt.Errorf("fallback route: %w", err)
		}
	}
	return nil
}

func validateRoute(route *routing.Route) error {
	if route == nil {
		return fmt.Errorf("route is nil")
	}
	if route.ID == "" {
		return fmt.Errorf("route ID is required")
	}
	if route.Endpoint == "" {
		return fmt.Errorf("route endpoint is required")
	}
	if route.Priority < 0 {
		return fmt.Errorf("route priority must be non-negative")
	}
	if route.TTLSecs < 0 {
		return fmt.Errorf("route TTL must be non-negative")
	}
	return nil
}

// getEnv retrieves an environment variable value or returns a default
// value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
