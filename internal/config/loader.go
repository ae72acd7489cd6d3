package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/fabricpilot/vanctl/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Load reads configPath (if it exists), overlays the §6 environment
// variables, validates the result, and returns it. A missing file is not an
// error — defaults are used.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logging.Info("Config", "no config file at %s, using defaults", configPath)
			} else {
				return Config{}, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", configPath, err)
		} else {
			logging.Info("Config", "loaded configuration from %s", configPath)
		}
	}

	applyEnvOverlay(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverlay implements §6's CLI/env contract:
//
//	SKX_STANDALONE_NAMESPACE  - run outside cluster against this namespace
//	SKX_CONTROLLER_NAME       - seed ManagementControllers.Name
//	HOSTNAME                  - fallback for the above when unset
func applyEnvOverlay(cfg *Config) {
	if ns := os.Getenv("SKX_STANDALONE_NAMESPACE"); ns != "" {
		cfg.Cluster.StandaloneNamespace = ns
	}
	if name := os.Getenv("SKX_CONTROLLER_NAME"); name != "" {
		cfg.ControllerName = name
	} else if cfg.ControllerName == "" {
		if host := os.Getenv("HOSTNAME"); host != "" {
			cfg.ControllerName = host
		}
	}
}
