package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/dotcommander/qloop/internal/scoring"
)

// Config represents the qloop configuration
type Config struct {
	Format     string             `mapstructure:"format"`
	Output     string             `mapstructure:"output"`
	Quiet      bool               `mapstructure:"quiet"`
	Verbose    bool               `mapstructure:"verbose"`
	Reports    string             `mapstructure:"reports"`
	History    HistoryConfig      `mapstructure:"history"`
	Thresholds ThresholdConfig    `mapstructure:"thresholds"`
	Dimensions map[string]float64 `mapstructure:"dimensions"`
	Components ComponentConfig    `mapstructure:"components"`
	Loop       LoopConfig         `mapstructure:"loop"`
}

// HistoryConfig controls the assessment history file and bound
type HistoryConfig struct {
	File  string `mapstructure:"file"`
	Limit int    `mapstructure:"limit"`
}

// ThresholdConfig holds the score band cut points. The legacy alias
// keys (excellent/good/failing) are still accepted and map onto the
// band names when the modern keys are absent.
type ThresholdConfig struct {
	ProductionReady float64 `mapstructure:"production_ready"`
	NeedsAttention  float64 `mapstructure:"needs_attention"`
	Iterate         float64 `mapstructure:"iterate"`

	Excellent float64 `mapstructure:"excellent"`
	Good      float64 `mapstructure:"good"`
	Failing   float64 `mapstructure:"failing"`
}

// ComponentConfig overrides the score blender weights
type ComponentConfig struct {
	Review       float64 `mapstructure:"review"`
	Completeness float64 `mapstructure:"completeness"`
	TestCoverage float64 `mapstructure:"test_coverage"`
}

// LoopConfig controls the improvement loop
type LoopConfig struct {
	MaxIterations  int     `mapstructure:"max_iterations"`
	MinImprovement float64 `mapstructure:"min_improvement"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
	Improver       string  `mapstructure:"improver"`
}

// LoadConfig loads configuration from various sources
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("format", "console")
	viper.SetDefault("quiet", false)
	viper.SetDefault("verbose", false)
	viper.SetDefault("reports", ".")
	viper.SetDefault("history.limit", 100)
	viper.SetDefault("thresholds.production_ready", scoring.DefaultProductionReady)
	viper.SetDefault("thresholds.needs_attention", scoring.DefaultNeedsAttention)
	viper.SetDefault("thresholds.iterate", scoring.DefaultIterateFloor)
	viper.SetDefault("loop.max_iterations", 3)
	viper.SetDefault("loop.min_improvement", 5.0)
	viper.SetDefault("loop.timeout_seconds", 0.0)

	// Config file locations
	configPaths := []string{".qlooprc.json", ".qlooprc.yaml", ".qlooprc.yml"}
	for _, path := range configPaths {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err == nil {
			break
		}
	}

	// Environment variables
	viper.SetEnvPrefix("QLOOP")
	viper.AutomaticEnv()

	// Create config instance
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	// Validate format
	if config.Format != "console" && config.Format != "json" && config.Format != "markdown" {
		return fmt.Errorf("invalid format: %s. Must be 'console', 'json', or 'markdown'", config.Format)
	}

	// Validate threshold ordering
	t := config.ScoringThresholds()
	if t.ProductionReady < t.NeedsAttention || t.NeedsAttention < t.Iterate {
		return fmt.Errorf("thresholds must be ordered: production_ready >= needs_attention >= iterate")
	}

	// Validate loop settings
	if config.Loop.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be at least 1")
	}
	if config.Loop.MinImprovement < 0 {
		return fmt.Errorf("loop.min_improvement must not be negative")
	}
	if config.Loop.TimeoutSeconds < 0 {
		return fmt.Errorf("loop.timeout_seconds must not be negative")
	}

	// Validate dimension weight overrides
	for name, weight := range config.Dimensions {
		if weight < 0 {
			return fmt.Errorf("dimension weight for %s must not be negative", name)
		}
	}

	return nil
}

// ScoringThresholds resolves the threshold set, honoring the legacy
// alias keys when the modern ones were not set.
func (c *Config) ScoringThresholds() scoring.Thresholds {
	t := scoring.DefaultThresholds()

	pick := func(modern, legacy float64, fallback float64) float64 {
		if modern > 0 {
			return modern
		}
		if legacy > 0 {
			return legacy
		}
		return fallback
	}

	t.ProductionReady = pick(c.Thresholds.ProductionReady, c.Thresholds.Excellent, t.ProductionReady)
	t.NeedsAttention = pick(c.Thresholds.NeedsAttention, c.Thresholds.Good, t.NeedsAttention)
	t.Iterate = pick(c.Thresholds.Iterate, c.Thresholds.Failing, t.Iterate)
	return t
}

// DimensionWeights converts the string-keyed overrides into the typed
// weight map the scorer expects. Unknown dimension names are ignored.
func (c *Config) DimensionWeights() map[scoring.Dimension]float64 {
	if len(c.Dimensions) == 0 {
		return nil
	}
	weights := make(map[scoring.Dimension]float64, len(c.Dimensions))
	for name, weight := range c.Dimensions {
		weights[scoring.Dimension(name)] = weight
	}
	return weights
}

// ComponentWeights resolves the blender weights, keeping defaults for
// any component left unset.
func (c *Config) ComponentWeights() scoring.ComponentWeights {
	w := scoring.DefaultComponentWeights()
	if c.Components.Review > 0 {
		w.Review = c.Components.Review
	}
	if c.Components.Completeness > 0 {
		w.Completeness = c.Components.Completeness
	}
	if c.Components.TestCoverage > 0 {
		w.TestCoverage = c.Components.TestCoverage
	}
	return w
}

// ScorerOptions builds the scorer options implied by the configuration
func (c *Config) ScorerOptions() []scoring.Option {
	opts := []scoring.Option{
		scoring.WithThresholds(c.ScoringThresholds()),
		scoring.WithComponentWeights(c.ComponentWeights()),
	}
	if weights := c.DimensionWeights(); weights != nil {
		opts = append(opts, scoring.WithDimensionWeights(weights))
	}
	if c.History.Limit > 0 {
		opts = append(opts, scoring.WithHistoryLimit(c.History.Limit))
	}
	return opts
}

// SaveConfig saves the current configuration to a file
func SaveConfig(config *Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	// Marshal config to JSON
	jsonData, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
