// Package config loads the fitting defaults used by the command-line tools.
// Fields omitted from the JSON file keep built-in defaults, so partial
// configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moonlight1509/pythea/internal/fitting"
)

// Built-in defaults, applied when the config file omits a field.
const (
	defaultStrategy    = string(fitting.Spline)
	defaultPolyOrder   = 2
	defaultSplineOrder = 3
	defaultSmoothing   = 0.5
	defaultGOESClass   = "B1.0"
)

// FitDefaults configures one strategy's default parameters.
type FitDefaults struct {
	Strategy  *string  `json:"strategy,omitempty"`
	Order     *int     `json:"order,omitempty"`
	Smoothing *float64 `json:"smooth,omitempty"`
}

// Config is the root tool configuration.
type Config struct {
	// DatabasePath locates the session store.
	DatabasePath *string `json:"database_path,omitempty"`

	// GOESClassThreshold filters the flare catalog shown for event selection.
	GOESClassThreshold *string `json:"goes_class_threshold,omitempty"`

	// Fit holds the global fit defaults; PerModel overrides them for a
	// specific geometric model kind.
	Fit      FitDefaults            `json:"fit,omitempty"`
	PerModel map[string]FitDefaults `json:"per_model,omitempty"`
}

// Load reads a JSON config file. A missing path returns the built-in
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configured values.
func (c *Config) Validate() error {
	check := func(scope string, fd FitDefaults) error {
		if fd.Strategy != nil {
			switch fitting.Kind(*fd.Strategy) {
			case fitting.Polynomial, fitting.Spline:
			default:
				return fmt.Errorf("%s: unknown strategy %q", scope, *fd.Strategy)
			}
		}
		if fd.Order != nil && *fd.Order < 1 {
			return fmt.Errorf("%s: order must be >= 1, got %d", scope, *fd.Order)
		}
		if fd.Smoothing != nil && *fd.Smoothing < 0 {
			return fmt.Errorf("%s: smooth must be >= 0, got %v", scope, *fd.Smoothing)
		}
		return nil
	}
	if err := check("fit", c.Fit); err != nil {
		return err
	}
	for name, fd := range c.PerModel {
		if err := check("per_model."+name, fd); err != nil {
			return err
		}
	}
	return nil
}

// GetDatabasePath returns the session store path.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath != nil {
		return *c.DatabasePath
	}
	return "fittings.db"
}

// GetGOESClassThreshold returns the flare-class filter.
func (c *Config) GetGOESClassThreshold() string {
	if c.GOESClassThreshold != nil {
		return *c.GOESClassThreshold
	}
	return defaultGOESClass
}

// FitConfig resolves the fit configuration for a geometric model kind,
// applying per-model overrides over the global defaults.
func (c *Config) FitConfig(modelKind string) fitting.Config {
	strategy := defaultStrategy
	var order *int
	var smoothing *float64

	apply := func(fd FitDefaults) {
		if fd.Strategy != nil {
			strategy = *fd.Strategy
		}
		if fd.Order != nil {
			order = fd.Order
		}
		if fd.Smoothing != nil {
			smoothing = fd.Smoothing
		}
	}
	apply(c.Fit)
	if fd, ok := c.PerModel[modelKind]; ok {
		apply(fd)
	}

	cfg := fitting.Config{Kind: fitting.Kind(strategy)}
	if order != nil {
		cfg.Order = *order
	} else if cfg.Kind == fitting.Polynomial {
		cfg.Order = defaultPolyOrder
	} else {
		cfg.Order = defaultSplineOrder
	}
	if cfg.Kind == fitting.Spline {
		if smoothing != nil {
			cfg.Smoothing = *smoothing
		} else {
			cfg.Smoothing = defaultSmoothing
		}
	}
	return cfg
}
