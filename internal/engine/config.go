package engine

// APIKeyEnv maps the api_keys config blob onto the environment
// variables the wrapped frameworks read.
func APIKeyEnv(config map[string]any) map[string]string {
	env := make(map[string]string)
	if config == nil {
		return env
	}
	keys, ok := config["api_keys"].(map[string]any)
	if !ok {
		return env
	}
	mapping := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"google":    "GOOGLE_API_KEY",
	}
	for name, envName := range mapping {
		if value, ok := keys[name].(string); ok && value != "" {
			env[envName] = value
		}
	}
	return env
}

// IntFromConfig reads an integer setting that may arrive as a JSON
// number.
func IntFromConfig(config map[string]any, key string, fallback int) int {
	if config == nil {
		return fallback
	}
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// StringFromConfig reads a string setting, falling back on absence or
// the wrong type.
func StringFromConfig(config map[string]any, key, fallback string) string {
	if config == nil {
		return fallback
	}
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
