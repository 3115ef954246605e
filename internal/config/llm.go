package config

// LLMConfig configures the opaque LLM capability backing Planner,
// Implementer, Tester and Reviewer calls.
type LLMConfig struct {
	Provider  string `yaml:"provider"`    // genai is the only built-in binding
	APIKeyEnv string `yaml:"api_key_env"` // env var name holding the API key
	Model     string `yaml:"model"`
	Timeout   string `yaml:"timeout"`
}
