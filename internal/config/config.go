package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Classifier kinds
const (
	ClassifierBackend  = "backend"
	ClassifierOllama   = "ollama"
	ClassifierLlamaCpp = "llamacpp"
)

// ValidClassifiers lists the supported classifier kinds
var ValidClassifiers = []string{ClassifierBackend, ClassifierOllama, ClassifierLlamaCpp}

// Config holds the application configuration
type Config struct {
	API        APIConfig        `yaml:"api"`
	User       UserConfig       `yaml:"user"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Points     PointsConfig     `yaml:"points"`
	Upload     UploadConfig     `yaml:"upload"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig holds the recycling backend settings
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// UserConfig identifies the session user
type UserConfig struct {
	Email string `yaml:"email"`
}

// ClassifierConfig selects where photos are classified
type ClassifierConfig struct {
	Kind              string `yaml:"kind"` // backend, ollama, llamacpp
	URL               string `yaml:"url"`
	Model             string `yaml:"model"`
	Timeout           string `yaml:"timeout"`
	SimulateOnFailure bool   `yaml:"simulate_on_failure"`
}

// PointsConfig holds the points client and quiz settings
type PointsConfig struct {
	RefreshInterval string `yaml:"refresh_interval"`
	RequiredPhotos  int    `yaml:"required_photos"`
}

// UploadConfig controls how photos are prepared before classification
type UploadConfig struct {
	MaxDim  int `yaml:"max_dim"`
	Quality int `yaml:"quality"`
	MinSide int `yaml:"min_side"`
}

// StoreConfig holds the local record store settings
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://gs.kwb.com.co",
			Timeout: "15s",
		},
		Classifier: ClassifierConfig{
			Kind:              ClassifierBackend,
			Timeout:           "60s",
			SimulateOnFailure: true,
		},
		Points: PointsConfig{
			RefreshInterval: "8s",
			RequiredPhotos:  3,
		},
		Upload: UploadConfig{
			MaxDim:  1280,
			Quality: 90,
			MinSide: 32,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads .env (if present) and the YAML file at path, then applies
// ECORECYCLE_* environment overrides. A missing file yields the defaults.
// The result is not validated, so callers can apply their own overrides first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ECORECYCLE_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ECORECYCLE_EMAIL"); v != "" {
		c.User.Email = v
	}
	if v := os.Getenv("ECORECYCLE_CLASSIFIER"); v != "" {
		c.Classifier.Kind = v
	}
	if v := os.Getenv("ECORECYCLE_CLASSIFIER_URL"); v != "" {
		c.Classifier.URL = v
	}
	if v := os.Getenv("ECORECYCLE_MODEL"); v != "" {
		c.Classifier.Model = v
	}
	if v := os.Getenv("ECORECYCLE_SIMULATE"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ECORECYCLE_SIMULATE: %w", err)
		}
		c.Classifier.SimulateOnFailure = on
	}
	if v := os.Getenv("ECORECYCLE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ECORECYCLE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url cannot be empty")
	}

	valid := false
	for _, k := range ValidClassifiers {
		if c.Classifier.Kind == k {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid classifier kind: %s (valid: %v)", c.Classifier.Kind, ValidClassifiers)
	}
	if c.Classifier.Kind != ClassifierBackend && c.Classifier.Model == "" {
		return fmt.Errorf("classifier.model is required for %s", c.Classifier.Kind)
	}

	for name, d := range map[string]string{
		"api.timeout":             c.API.Timeout,
		"classifier.timeout":      c.Classifier.Timeout,
		"points.refresh_interval": c.Points.RefreshInterval,
	} {
		if d == "" {
			continue
		}
		if v, err := time.ParseDuration(d); err != nil || v < 0 {
			return fmt.Errorf("%s must be a non-negative duration, got %q", name, d)
		}
	}

	if c.Points.RequiredPhotos < 1 {
		return fmt.Errorf("points.required_photos must be positive")
	}
	if c.Upload.Quality < 1 || c.Upload.Quality > 100 {
		return fmt.Errorf("upload.quality must be between 1 and 100")
	}
	if c.Upload.MinSide < 1 {
		return fmt.Errorf("upload.min_side must be positive")
	}
	if c.Upload.MaxDim < 0 {
		return fmt.Errorf("upload.max_dim cannot be negative")
	}
	return nil
}

// APITimeout returns the backend timeout as a duration
func (c *Config) APITimeout() time.Duration {
	return parseDuration(c.API.Timeout, 15*time.Second)
}

// ClassifierTimeout returns the classification timeout as a duration
func (c *Config) ClassifierTimeout() time.Duration {
	return parseDuration(c.Classifier.Timeout, 60*time.Second)
}

// RefreshInterval returns the minimum time between balance refreshes
func (c *Config) RefreshInterval() time.Duration {
	return parseDuration(c.Points.RefreshInterval, 8*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "ecorecycle", "config.yaml")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./ecorecycle.db"
	}
	return filepath.Join(home, ".local", "share", "ecorecycle", "records.db")
}
