// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// legacyConfigPath is the path to the configuration file used in previous versions.
	legacyConfigPath = "config.json"
	// defaultRequestTimeout is the default timeout for HTTP requests.
	defaultRequestTimeout = 600 * time.Second

	DefaultBackend      = "cpu"
	DefaultWarmupRounds = 1
	DefaultEpochRounds  = 50
	DefaultSeed         = 42
	DefaultLogFile      = "kernelbench.log"
	DefaultListenAddr   = "127.0.0.1:8089"
	DefaultExportDir    = "kernelbenchData/reports"
)

// Config represents the top-level application configuration.
type Config struct {
	Backend        string `json:"backend" mapstructure:"backend"`
	WarmupRounds   int    `json:"warmupRounds" mapstructure:"warmupRounds"`
	EpochRounds    int    `json:"epochRounds" mapstructure:"epochRounds"`
	Seed           int64  `json:"seed" mapstructure:"seed"`
	Debug          bool   `json:"debug" mapstructure:"debug"`
	JSONMode       bool   `json:"jsonMode" mapstructure:"jsonMode"`
	LogFile        string `json:"logFile,omitempty" mapstructure:"logFile"`
	ExportPath     string `json:"export,omitempty" mapstructure:"export"`
	ListenAddr     string `json:"listenAddr,omitempty" mapstructure:"listenAddr"`
	TimeoutSeconds int    `json:"requestTimeout,omitempty" mapstructure:"requestTimeout"`
	// ParallelWorkers caps the goroutines used by the parallel backend; 0 means GOMAXPROCS.
	ParallelWorkers int            `json:"parallelWorkers,omitempty" mapstructure:"parallelWorkers"`
	Workloads       WorkloadConfig `json:"workloads" mapstructure:"workloads"`
	ConfigPath      string         `json:"-" mapstructure:"-"`
}

// WorkloadConfig holds the inputs handed to the built-in workloads.
type WorkloadConfig struct {
	TensorShape []int  `json:"tensorShape,omitempty" mapstructure:"tensorShape"`
	Image       string `json:"image,omitempty" mapstructure:"image"`
	SeedText    string `json:"seedText,omitempty" mapstructure:"seedText"`
	Question    string `json:"question,omitempty" mapstructure:"question"`
	PassageFile string `json:"passageFile,omitempty" mapstructure:"passageFile"`
}

// Defaults returns the configuration used when no file or flag sets a value.
func Defaults() Config {
	return Config{
		Backend:        DefaultBackend,
		WarmupRounds:   DefaultWarmupRounds,
		EpochRounds:    DefaultEpochRounds,
		Seed:           DefaultSeed,
		LogFile:        DefaultLogFile,
		ListenAddr:     DefaultListenAddr,
		TimeoutSeconds: int(defaultRequestTimeout.Seconds()),
	}
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return DefaultLogFile
}

// BackendName returns the configured engine backend, lower-cased.
func (c Config) BackendName() string {
	if b := strings.ToLower(strings.TrimSpace(c.Backend)); b != "" {
		return b
	}
	return DefaultBackend
}

// Listen returns the address the HTTP server binds to.
func (c Config) Listen() string {
	if addr := strings.TrimSpace(c.ListenAddr); addr != "" {
		return addr
	}
	return DefaultListenAddr
}

// ExportDir returns the report directory, or "" when exporting is disabled.
func (c Config) ExportDir() string {
	return strings.TrimSpace(c.ExportPath)
}

// Load reads the application configuration from the specified path, with fallback to a legacy path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err == nil {
		config.ConfigPath = path
		return config, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		if path == DefaultConfigPath {
			config, legacyErr := loadFromPath(legacyConfigPath)
			if legacyErr == nil {
				config.ConfigPath = legacyConfigPath
				return config, nil
			}
			if errors.Is(legacyErr, os.ErrNotExist) {
				return Config{}, fmt.Errorf("no configuration file found (searched %q and %q)", DefaultConfigPath, legacyConfigPath)
			}
			return Config{}, fmt.Errorf("could not read config file %q: %w", legacyConfigPath, legacyErr)
		}
		return Config{}, fmt.Errorf("no configuration file found at %q", path)
	}

	return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
}

// loadFromPath validates the file against the config schema and decodes it over the defaults.
func loadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(data); err != nil {
		return Config{}, err
	}

	config := Defaults()
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
