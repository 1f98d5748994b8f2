package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Default configuration constants
const (
	DefaultLogLevel = "info"
)

// Environment variables read by Load
const (
	EnvAPIKey    = "FLIGHTLOG_API_KEY"
	EnvOutputDir = "FLIGHTLOG_OUTPUT_DIR"
	EnvLogLevel  = "FLIGHTLOG_LOG_LEVEL"
	EnvGzip      = "FLIGHTLOG_GZIP"
)

// Config holds application configuration
type Config struct {
	APIKey    string `yaml:"apiKey"`
	OutputDir string `yaml:"outputDir"`
	Gzip      bool   `yaml:"gzip"`
	LogLevel  string `yaml:"logLevel"`

	// Command-line only
	Output      string `yaml:"-"`
	Stdout      bool   `yaml:"-"`
	Verbose     bool   `yaml:"-"`
	ShowVersion bool   `yaml:"-"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{LogLevel: DefaultLogLevel}
}

// Load builds a configuration from the defaults, the optional YAML file and
// the environment. A .env file in the working directory is loaded first if
// present. Flags are applied on top by the caller.
func Load(configFile string) (Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		if err := config.LoadFile(configFile); err != nil {
			return Config{}, err
		}
	}

	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return config, nil
}

// LoadFile overlays the settings of a YAML file
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the settings found through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIKey); ok {
		c.APIKey = v
	}
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		c.OutputDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvGzip); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvGzip, v, err)
		}
		c.Gzip = b
	}
	return nil
}

// Level returns the logging level. Verbose always means debug.
func (c Config) Level() (logrus.Level, error) {
	if c.Verbose {
		return logrus.DebugLevel, nil
	}
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
