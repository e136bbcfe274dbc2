package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trackxp/core"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" yaml:"environment" env:"TRACKXP_ENV"`
	Profile     string      `json:"profile" yaml:"profile" env:"TRACKXP_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// XP model tuning
	XP XPConfig `json:"xp" yaml:"xp"`

	// Ledger replay settings
	Ledger LedgerConfig `json:"ledger" yaml:"ledger"`

	// Security configuration
	Security SecurityConfig `json:"security" yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" yaml:"address" env:"TRACKXP_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" yaml:"path_prefix" env:"TRACKXP_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" yaml:"cors_origin" env:"TRACKXP_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"TRACKXP_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"TRACKXP_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"TRACKXP_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"TRACKXP_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"TRACKXP_SERVER_SHUTDOWN_TIMEOUT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" yaml:"level" env:"TRACKXP_LOG_LEVEL"`
	Format     string            `json:"format" yaml:"format" env:"TRACKXP_LOG_FORMAT"`
	Output     string            `json:"output" yaml:"output" env:"TRACKXP_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" env:"TRACKXP_LOG_ATTRIBUTES"`
}

// XPConfig mirrors core.Config with file and environment bindings.
type XPConfig struct {
	BaseXPPerStoryPoint float64 `json:"base_xp_per_story_point" yaml:"base_xp_per_story_point" env:"TRACKXP_XP_BASE_PER_STORY_POINT"`
	PRMergeBonus        float64 `json:"pr_merge_bonus" yaml:"pr_merge_bonus" env:"TRACKXP_XP_PR_MERGE_BONUS"`
	MicroCapPerDay      float64 `json:"micro_cap_per_day" yaml:"micro_cap_per_day" env:"TRACKXP_XP_MICRO_CAP_PER_DAY"`
	MaxStreakMultiplier float64 `json:"max_streak_multiplier" yaml:"max_streak_multiplier" env:"TRACKXP_XP_MAX_STREAK_MULTIPLIER"`
	LevelA              float64 `json:"level_a" yaml:"level_a" env:"TRACKXP_XP_LEVEL_A"`
	LevelAlpha          float64 `json:"level_alpha" yaml:"level_alpha" env:"TRACKXP_XP_LEVEL_ALPHA"`
}

// Core converts the bound values into the model configuration.
func (x XPConfig) Core() core.Config {
	return core.Config{
		BaseXPPerStoryPoint: x.BaseXPPerStoryPoint,
		PRMergeBonus:        x.PRMergeBonus,
		MicroCapPerDay:      x.MicroCapPerDay,
		MaxStreakMultiplier: x.MaxStreakMultiplier,
		LevelA:              x.LevelA,
		LevelAlpha:          x.LevelAlpha,
	}
}

func xpFromCore(c core.Config) XPConfig {
	return XPConfig{
		BaseXPPerStoryPoint: c.BaseXPPerStoryPoint,
		PRMergeBonus:        c.PRMergeBonus,
		MicroCapPerDay:      c.MicroCapPerDay,
		MaxStreakMultiplier: c.MaxStreakMultiplier,
		LevelA:              c.LevelA,
		LevelAlpha:          c.LevelAlpha,
	}
}

// LedgerConfig holds ledger replay settings
type LedgerConfig struct {
	Timezone  string `json:"timezone" yaml:"timezone" env:"TRACKXP_LEDGER_TIMEZONE"`
	OutputDir string `json:"output_dir" yaml:"output_dir" env:"TRACKXP_LEDGER_OUTPUT_DIR"`
}

// Location resolves Timezone; empty means UTC.
func (l LedgerConfig) Location() (*time.Location, error) {
	if l.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(l.Timezone)
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" yaml:"enable_rate_limit" env:"TRACKXP_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" env:"TRACKXP_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" yaml:"burst_size" env:"TRACKXP_SECURITY_RATE_LIMIT_BURST"`
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load loads configuration from environment variables and validates it.
// Any dotenv files given are read first; variables already set win.
func Load(dotenv ...string) (*Config, error) {
	if err := loadDotEnv(dotenv...); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	// Load from environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if cfg.Profile != "" && cfg.Profile != "default" {
		profiled, err := LoadProfile(cfg.Profile)
		if err != nil {
			return nil, err
		}
		cfg = profiled
		if err := loadFromEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load dotenv file %s: %w", p, err)
		}
	}
	return nil
}

type fileFormat int

const (
	formatJSON fileFormat = iota
	formatYAML
)

// validateConfigPath validates that the config file path is safe and
// returns its format
func validateConfigPath(path string) (fileFormat, error) {
	if path == "" {
		return 0, errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	var format fileFormat
	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json":
		format = formatJSON
	case ".yaml", ".yml":
		format = formatYAML
	default:
		return 0, errors.New("config file must have .json, .yaml or .yml extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return 0, fmt.Errorf("config file not accessible: %w", err)
	}

	return format, nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Environment
// variables override file values.
func LoadFromFile(path string) (*Config, error) {
	format, err := validateConfigPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := decode(format, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func decode(format fileFormat, data []byte, cfg *Config) error {
	if format == formatYAML {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
	return json.Unmarshal(data, cfg)
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		XP: xpFromCore(core.DefaultConfig()),
		Ledger: LedgerConfig{
			Timezone:  "UTC",
			OutputDir: "docs/generated",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
				BurstSize:         20,
			},
		},
	}
}

// LoadProfile returns the defaults for a named deployment profile.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name
	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = "127.0.0.1:0"
		cfg.Logging.Level = "warn"
		cfg.Logging.Format = "text"
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Security.EnableRateLimit = true
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Server.CORSOrigin = ""
		cfg.Security.EnableRateLimit = true
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if err := c.XP.Core().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("xp config: %v", err))
	}

	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("ledger config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
