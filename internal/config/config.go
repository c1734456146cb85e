// Package config loads simscript's runtime configuration.
//
// The config file uses a minimal line-oriented format: one "option value"
// pair per line, '#' comments, blank lines ignored. Missing file means all
// defaults.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the bridge's tunable settings.
type Config struct {
	// TickRate is how many simulation ticks run per second.
	TickRate int
	// ScriptBudget is the wall-clock limit per script evaluation. Zero
	// disables the budget guard.
	ScriptBudget time.Duration
	// ScriptPath, when set, is a script loaded and proposed at startup.
	ScriptPath string
	// LogLevel is a zerolog level name ("debug", "info", "warn", ...).
	LogLevel string
	// Warnings collects non-fatal problems found while loading.
	Warnings []string
}

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		TickRate:     30,
		ScriptBudget: 50 * time.Millisecond,
		LogLevel:     "info",
	}
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(dir, "simscript", "config"), nil
}

// Load reads the config file at the default location, returning defaults if
// it does not exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from path. A missing file is not an
// error; unknown options and malformed values are recorded as warnings and
// otherwise ignored.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		option, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)
		if err := cfg.apply(option, value); err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("line %d: %v", lineNo, err))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(option, value string) error {
	switch option {
	case "tick-rate":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("tick-rate: %w", err)
		}
		c.TickRate = n
	case "script-budget":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("script-budget: %w", err)
		}
		c.ScriptBudget = d
	case "script":
		c.ScriptPath = value
	case "log-level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown option %q", option)
	}
	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return fmt.Errorf("tick-rate must be in 1..1000, got %d", c.TickRate)
	}
	if c.ScriptBudget < 0 {
		return fmt.Errorf("script-budget cannot be negative, got %v", c.ScriptBudget)
	}
	return nil
}
