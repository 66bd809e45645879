package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ResilienceConfig centralizes all resilience-related configuration
type ResilienceConfig struct {
	// Circuit breaker settings
	CBFailureThreshold int           // Number of failures before opening circuit
	CBTimeout          time.Duration // Timeout before attempting to close circuit
	CBHalfOpenRequests int           // Number of requests allowed in half-open state

	// Logging settings
	LogLevel string // Log level: DEBUG, INFO, WARN, ERROR
}

// DefaultResilienceConfig returns a ResilienceConfig with sensible defaults
func DefaultResilienceConfig() *ResilienceConfig {
	return &ResilienceConfig{
		// Circuit breaker defaults
		CBFailureThreshold: 5,
		CBTimeout:          30 * time.Second,
		CBHalfOpenRequests: 1,

		// Logging defaults
		LogLevel: "INFO",
	}
}

// envParser is a helper for parsing environment variables with validation
type envParser struct {
	errors []string
}

// parseDuration parses a duration environment variable, ensuring it's positive
func (p *envParser) parseDuration(envName string, target *time.Duration) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: invalid duration format (use '30s', '1m', etc.)", envName))
		return
	}

	if duration <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = duration
}

// parseInt parses an integer environment variable, ensuring it's positive
func (p *envParser) parseInt(envName string, target *int) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be a valid integer", envName))
		return
	}

	if intVal <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = intVal
}

// parseEnum parses an enum environment variable from a set of valid values
func (p *envParser) parseEnum(envName string, target *string, validValues map[string]bool) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	normalized := strings.ToUpper(val)
	if !validValues[normalized] {
		// Build list of valid values for error message
		var validList []string
		for k := range validValues {
			validList = append(validList, k)
		}
		p.errors = append(p.errors, fmt.Sprintf("%s must be one of: %s", envName, strings.Join(validList, ", ")))
		return
	}

	*target = normalized
}

// LoadFromEnv loads resilience configuration from environment variables
// and returns an error if any value is invalid
func LoadFromEnv() (*ResilienceConfig, error) {
	cfg := DefaultResilienceConfig()
	parser := &envParser{}

	// Parse all environment variables
	parser.parseInt("CB_FAILURE_THRESHOLD", &cfg.CBFailureThreshold)
	parser.parseDuration("CB_TIMEOUT", &cfg.CBTimeout)
	parser.parseInt("CB_HALF_OPEN_REQUESTS", &cfg.CBHalfOpenRequests)
	parser.parseEnum("LOG_LEVEL", &cfg.LogLevel, map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
	})

	if len(parser.errors) > 0 {
		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(parser.errors, "\n  - "))
	}

	return cfg, nil
}

// Validate performs additional validation on the configuration
func (c *ResilienceConfig) Validate() error {
	var errors []string

	if c.CBFailureThreshold <= 0 {
		errors = append(errors, "CBFailureThreshold must be positive")
	}

	if c.CBTimeout <= 0 {
		errors = append(errors, "CBTimeout must be positive")
	}

	if c.CBHalfOpenRequests <= 0 {
		errors = append(errors, "CBHalfOpenRequests must be positive")
	}

	validLevels := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
	}
	if !validLevels[c.LogLevel] {
		errors = append(errors, "LogLevel must be one of: DEBUG, INFO, WARN, ERROR")
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
