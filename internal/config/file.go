package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile           = "TOMAS_CONFIG_FILE"
	configDirName           = ".tomas"
	defaultConfigFileName   = "config.yaml"
	alternateConfigFileName = "config.yml"
)

type fileConfig struct {
	Version int               `yaml:"version"`
	Gateway fileGatewayConfig `yaml:"gateway"`
}

type fileGatewayConfig struct {
	HTTPAddr          string   `yaml:"http_addr"`
	DBDriver          string   `yaml:"db_driver"`
	DBDSN             string   `yaml:"db_dsn"`
	WorkspaceDir      string   `yaml:"workspace_dir"`
	CommandQueueSize  int      `yaml:"command_queue_size"`
	OpenAIAPIKey      string   `yaml:"openai_api_key"`
	AnthropicAPIKey   string   `yaml:"anthropic_api_key"`
	GoogleAPIKey      string   `yaml:"google_api_key"`
	WebhookURLs       []string `yaml:"webhook_urls"`
	PlannerCommand    string   `yaml:"planner_command"`
	ResearcherCommand string   `yaml:"researcher_command"`
}

func loadFileConfig() (fileConfig, error) {
	path, ok, err := resolveConfigFilePath()
	if err != nil {
		return fileConfig{}, err
	}
	if !ok {
		return fileConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return cfg, nil
}

func resolveConfigFilePath() (string, bool, error) {
	if explicit := os.Getenv(EnvConfigFile); explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", false, fmt.Errorf("config file %s: %w", explicit, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config file %s is a directory", explicit)
		}
		return explicit, true, nil
	}

	candidates := []string{
		filepath.Join(configDirName, defaultConfigFileName),
		filepath.Join(configDirName, alternateConfigFileName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(homeDir, configDirName, defaultConfigFileName),
			filepath.Join(homeDir, configDirName, alternateConfigFileName),
		)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}
	return "", false, nil
}
