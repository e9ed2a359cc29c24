package config

import (
	"strings"
	"sync"
)

// RuntimeConfig holds settings that can change while the gateway is
// running, primarily API keys pushed through the config endpoint. New
// sessions snapshot it at engine Initialize; running sessions keep the
// snapshot they started with.
type RuntimeConfig struct {
	mu       sync.RWMutex
	apiKeys  map[string]string
	settings map[string]any
}

func NewRuntimeConfig(base Config) *RuntimeConfig {
	rc := &RuntimeConfig{
		apiKeys:  make(map[string]string),
		settings: make(map[string]any),
	}
	for provider, key := range base.APIKeys() {
		if s, ok := key.(string); ok {
			rc.apiKeys[provider] = s
		}
	}
	return rc
}

func (rc *RuntimeConfig) SetAPIKey(provider, key string) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		delete(rc.apiKeys, provider)
		return
	}
	rc.apiKeys[provider] = key
}

func (rc *RuntimeConfig) SetSetting(name string, value any) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.settings[name] = value
}

// Snapshot returns the engine config map for a new session: current
// settings plus an "api_keys" entry.
func (rc *RuntimeConfig) Snapshot() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make(map[string]any, len(rc.settings)+1)
	for k, v := range rc.settings {
		out[k] = v
	}
	if len(rc.apiKeys) > 0 {
		keys := make(map[string]any, len(rc.apiKeys))
		for provider, key := range rc.apiKeys {
			keys[provider] = key
		}
		out["api_keys"] = keys
	}
	return out
}

// Providers lists which API key providers are set, without the keys.
func (rc *RuntimeConfig) Providers() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]string, 0, len(rc.apiKeys))
	for provider := range rc.apiKeys {
		out = append(out, provider)
	}
	return out
}
