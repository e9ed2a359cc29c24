package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultDBDriver         = "sqlite"
	defaultDBDSN            = "tomas.db"
	defaultWorkspaceDir     = ".tomas/workspaces"
	defaultCommandQueueSize = 16
	defaultShutdownTimeout  = 10 * time.Second
)

type Config struct {
	HTTPAddr         string
	DBDriver         string
	DBDSN            string
	WorkspaceDir     string
	CommandQueueSize int
	ShutdownTimeout  time.Duration

	// API keys handed to engine adapters at Initialize. Runtime
	// updates via the config endpoint land in RuntimeConfig, not here.
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string

	// WebhookURLs receive lifecycle events for every session.
	WebhookURLs []string

	// Engine launcher overrides; empty means the adapter default.
	PlannerCommand    string
	ResearcherCommand string
}

// Load layers environment variables over an optional YAML file:
// TOMAS_* env vars win, then the file, then defaults.
func Load() (Config, error) {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:          layer(os.Getenv("TOMAS_HTTP_ADDR"), fileCfg.Gateway.HTTPAddr, defaultHTTPAddr),
		DBDriver:          strings.ToLower(layer(os.Getenv("TOMAS_DB_DRIVER"), fileCfg.Gateway.DBDriver, defaultDBDriver)),
		DBDSN:             layer(os.Getenv("TOMAS_DB_DSN"), fileCfg.Gateway.DBDSN, defaultDBDSN),
		WorkspaceDir:      layer(os.Getenv("TOMAS_WORKSPACE_DIR"), fileCfg.Gateway.WorkspaceDir, defaultWorkspaceDir),
		CommandQueueSize:  defaultCommandQueueSize,
		ShutdownTimeout:   defaultShutdownTimeout,
		OpenAIAPIKey:      layer(os.Getenv("OPENAI_API_KEY"), fileCfg.Gateway.OpenAIAPIKey, ""),
		AnthropicAPIKey:   layer(os.Getenv("ANTHROPIC_API_KEY"), fileCfg.Gateway.AnthropicAPIKey, ""),
		GoogleAPIKey:      layer(os.Getenv("GOOGLE_API_KEY"), fileCfg.Gateway.GoogleAPIKey, ""),
		PlannerCommand:    layer(os.Getenv("TOMAS_PLANNER_COMMAND"), fileCfg.Gateway.PlannerCommand, ""),
		ResearcherCommand: layer(os.Getenv("TOMAS_RESEARCHER_COMMAND"), fileCfg.Gateway.ResearcherCommand, ""),
	}

	if raw := strings.TrimSpace(os.Getenv("TOMAS_COMMAND_QUEUE_SIZE")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 {
			cfg.CommandQueueSize = parsed
		}
	} else if fileCfg.Gateway.CommandQueueSize > 0 {
		cfg.CommandQueueSize = fileCfg.Gateway.CommandQueueSize
	}

	if raw := strings.TrimSpace(os.Getenv("TOMAS_SHUTDOWN_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err == nil && parsed > 0 {
			cfg.ShutdownTimeout = parsed
		}
	}

	if raw := strings.TrimSpace(os.Getenv("TOMAS_WEBHOOK_URLS")); raw != "" {
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.WebhookURLs = append(cfg.WebhookURLs, u)
			}
		}
	} else {
		cfg.WebhookURLs = append(cfg.WebhookURLs, fileCfg.Gateway.WebhookURLs...)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("TOMAS_HTTP_ADDR must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("TOMAS_DB_DRIVER must be sqlite or postgres")
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("TOMAS_DB_DSN must not be empty")
	}
	if strings.TrimSpace(c.WorkspaceDir) == "" {
		return fmt.Errorf("TOMAS_WORKSPACE_DIR must not be empty")
	}
	if c.CommandQueueSize <= 0 {
		return fmt.Errorf("TOMAS_COMMAND_QUEUE_SIZE must be > 0")
	}
	return nil
}

// APIKeys returns the configured keys in the shape engine adapters
// expect under the "api_keys" config entry.
func (c Config) APIKeys() map[string]any {
	keys := map[string]any{}
	if c.OpenAIAPIKey != "" {
		keys["openai"] = c.OpenAIAPIKey
	}
	if c.AnthropicAPIKey != "" {
		keys["anthropic"] = c.AnthropicAPIKey
	}
	if c.GoogleAPIKey != "" {
		keys["google"] = c.GoogleAPIKey
	}
	return keys
}

func layer(env, file, fallback string) string {
	if v := strings.TrimSpace(env); v != "" {
		return v
	}
	if v := strings.TrimSpace(file); v != "" {
		return v
	}
	return fallback
}
