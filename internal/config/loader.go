package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/testrig"
	projectConfigDir = ".testrig"
	configFileName   = "config.yaml"
)

// LoadConfig loads the run configuration by layering default, user, and
// project settings. Both files are optional; later layers override earlier
// ones field by field.
func LoadConfig() (RunConfig, error) {
	// 1. Start with the default configuration
	config := DefaultRunConfig()

	// 2. User-specific configuration
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return RunConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Project-specific configuration
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return RunConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	if err := config.Validate(); err != nil {
		return RunConfig{}, err
	}
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a RunConfig from a YAML file.
func loadConfigFromFile(filePath string) (RunConfig, error) {
	var config RunConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return RunConfig{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return RunConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Only fields the
// overlay actually sets (non-zero) override the base.
func mergeConfigs(base, overlay RunConfig) RunConfig {
	merged := base

	if overlay.MaxConcurrentEnvironments != 0 {
		merged.MaxConcurrentEnvironments = overlay.MaxConcurrentEnvironments
	}
	if overlay.AdapterCallTimeout != 0 {
		merged.AdapterCallTimeout = overlay.AdapterCallTimeout
	}
	if overlay.RetryAttempts != 0 {
		merged.RetryAttempts = overlay.RetryAttempts
	}
	if overlay.RetryBackoffBase != 0 {
		merged.RetryBackoffBase = overlay.RetryBackoffBase
	}
	if overlay.RetryBackoffMax != 0 {
		merged.RetryBackoffMax = overlay.RetryBackoffMax
	}
	if overlay.RunDeadline != 0 {
		merged.RunDeadline = overlay.RunDeadline
	}
	if overlay.MaxAssignmentsPerEnvironment != 0 {
		merged.MaxAssignmentsPerEnvironment = overlay.MaxAssignmentsPerEnvironment
	}

	return merged
}
