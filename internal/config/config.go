package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvAPIKey is the environment variable consulted when the config file
// does not carry a provider key. The key itself is a secret; it never
// belongs in version-controlled config.
const EnvAPIKey = "OPENTOPO_API_KEY"

// Config holds the application configuration.
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Slope    SlopeConfig    `json:"slope"`
	Output   OutputConfig   `json:"output"`
}

// ProviderConfig holds elevation-provider settings.
type ProviderConfig struct {
	APIKey            string   `json:"api_key,omitempty"`
	DEMType           string   `json:"dem_type"`
	Endpoints         []string `json:"endpoints"`
	MaxAttempts       int      `json:"max_attempts"`
	AttemptTimeoutSec int      `json:"attempt_timeout_sec"`
	CacheDir          string   `json:"cache_dir,omitempty"`
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (p ProviderConfig) AttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeoutSec) * time.Second
}

// SlopeConfig holds classification and flat-area settings.
type SlopeConfig struct {
	// FillStrategy is one of "mean", "nearest" or "reject".
	FillStrategy  string  `json:"fill_strategy"`
	FlatThreshold float64 `json:"flat_threshold"`
}

// OutputConfig holds raster output settings.
type OutputConfig struct {
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
	Scale     int    `json:"scale"`
	OutputDir string `json:"output_dir"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			DEMType: "SRTMGL1",
			Endpoints: []string{
				"https://portal.opentopography.org/API/globaldem",
				"https://portal.apac.opentopography.org/API/globaldem",
			},
			MaxAttempts:       5,
			AttemptTimeoutSec: 15,
		},
		Slope: SlopeConfig{
			FillStrategy:  "mean",
			FlatThreshold: 0.5,
		},
		Output: OutputConfig{
			Format:    "png",
			Quality:   90,
			Scale:     1,
			OutputDir: "./output",
		},
	}
}

// LoadFromFile loads configuration from a JSON file and applies the
// API key environment override.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.ApplyEnv()

	return config, nil
}

// ApplyEnv fills the API key from the environment when unset.
func (c *Config) ApplyEnv() {
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv(EnvAPIKey)
	}
}

// SaveToFile saves configuration to a JSON file. The API key is not
// written out.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	redacted := *c
	redacted.Provider.APIKey = ""
	data, err := json.MarshalIndent(&redacted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Provider.DEMType == "" {
		return fmt.Errorf("provider.dem_type cannot be empty")
	}

	if len(c.Provider.Endpoints) == 0 {
		return fmt.Errorf("provider.endpoints cannot be empty")
	}

	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider.max_attempts must be positive")
	}

	if c.Provider.AttemptTimeoutSec < 1 {
		return fmt.Errorf("provider.attempt_timeout_sec must be positive")
	}

	switch c.Slope.FillStrategy {
	case "mean", "nearest", "reject":
	default:
		return fmt.Errorf("slope.fill_strategy must be mean, nearest or reject")
	}

	if c.Slope.FlatThreshold <= 0 {
		return fmt.Errorf("slope.flat_threshold must be positive")
	}

	switch c.Output.Format {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be png, jpg, jpeg or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Output.Scale < 1 || c.Output.Scale > 64 {
		return fmt.Errorf("output.scale must be between 1 and 64")
	}

	return nil
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "slope-analyzer", "config.json")
}
