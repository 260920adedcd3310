package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt seeds every new conversation.
const DefaultSystemPrompt = "You are a helpful assistant."

// ModelConfig describes one configured backend. Immutable after Load.
type ModelConfig struct {
	// Name is the configured identifier, filled in by Resolve.
	Name    string `mapstructure:"-" yaml:"-"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// Config is the process-wide configuration: the model registry plus chat
// defaults. Models maps a human-chosen identifier to its backend parameters.
type Config struct {
	DefaultModel string                 `mapstructure:"default_model" yaml:"default_model"`
	SystemPrompt string                 `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	Serve        ServeConfig            `mapstructure:"serve" yaml:"serve,omitempty"`
	Models       map[string]ModelConfig `mapstructure:"models" yaml:"models"`
}

// ServeConfig configures the WebSocket chat server.
type ServeConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr,omitempty"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// UnknownModelError reports a model identifier with no registry entry.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

// MissingCredentialError reports a configured model whose API key is absent.
// It is raised at call time, never at load time, so an unconfigured model is
// an inline error rather than a startup crash.
type MissingCredentialError struct {
	Model string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("no API key configured for %s", e.Model)
}

// Resolve looks up a model identifier in the registry. Lookup falls back to
// the lowercased identifier because viper lowercases map keys read from the
// config file.
func (c *Config) Resolve(name string) (ModelConfig, error) {
	mc, ok := c.Models[name]
	if !ok {
		mc, ok = c.Models[strings.ToLower(name)]
	}
	if !ok {
		return ModelConfig{}, &UnknownModelError{Model: name}
	}
	mc.Name = name
	return mc, nil
}

// Credential validates that the model has an API key. Callers check this
// immediately before issuing a backend request.
func (m ModelConfig) Credential() error {
	if strings.TrimSpace(m.APIKey) == "" {
		return &MissingCredentialError{Model: m.Name}
	}
	return nil
}

// ModelNames returns the configured identifiers in sorted order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(configDir, "chat-llm"))
	v.AddConfigPath(".")

	setDefaults(v)

	// Config file is optional; defaults plus env vars are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Models) == 0 {
		cfg.Models = defaultModels()
	}
	applyEnvFallbacks(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_model", "DeepSeek")
	v.SetDefault("system_prompt", DefaultSystemPrompt)
	v.SetDefault("serve.addr", "127.0.0.1:8484")
}

// defaultModels is the registry used when the config file defines none.
func defaultModels() map[string]ModelConfig {
	return map[string]ModelConfig{
		"DeepSeek": {BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
		"OpenAI":   {BaseURL: "https://api.openai.com/v1", Model: "gpt-3.5-turbo"},
	}
}

// applyEnvFallbacks expands ${VAR} references in api keys and falls back to
// the conventional environment variable for each model identifier
// (DEEPSEEK_API_KEY for DeepSeek, OPENAI_API_KEY for OpenAI, and so on).
func applyEnvFallbacks(cfg *Config) {
	for name, mc := range cfg.Models {
		mc.APIKey = expandEnv(mc.APIKey)
		if mc.APIKey == "" {
			mc.APIKey = os.Getenv(envKeyName(name))
		}
		cfg.Models[name] = mc
	}
}

func envKeyName(model string) string {
	return strings.ToUpper(strings.ReplaceAll(model, "-", "_")) + "_API_KEY"
}

// expandEnv expands ${VAR} or $VAR in a string.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// Path returns where the config file should live.
func Path() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "chat-llm", "config.yaml"), nil
}

// Save writes the config to disk.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
