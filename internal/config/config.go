// Package config layers YAML file settings underneath environment variables.
// Precedence is defaults, then the YAML file, then env vars, so an exported
// variable always beats the file and existing env-only setups keep working.
//
// The file is looked up in order: the --config flag, PFAI_CONFIG,
// ~/.pfai/config.yaml, then ./pfai.yaml. No file found means env-only.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file layout. Tags follow the env var naming
// (lowercase, underscored) so the two surfaces read the same.
type Config struct {
	Model       ModelConfig      `yaml:"model"`
	Session     SessionConfig    `yaml:"session"`
	Server      ServerConfig     `yaml:"server"`
	Logging     LoggingConfig    `yaml:"logging"`
	Checkpoints CheckpointConfig `yaml:"checkpoints"`
	Tracing     TracingConfig    `yaml:"tracing"`
}

// ModelConfig selects and parameterises the chat model backend.
type ModelConfig struct {
	// Provider is one of ollama, openai, azure, bedrock, gemini.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama  OllamaConfig  `yaml:"ollama"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Azure   AzureConfig   `yaml:"azure"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// Keys accepted in YAML for convenience; prefer the corresponding env vars
// for anything secret so the value never lands in a config file.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SessionConfig carries the conversation token budgets: MaxContextTokens is
// the compaction threshold, MaxToolResponseTokens the per-tool-response
// chunking threshold.
type SessionConfig struct {
	MaxContextTokens      int `yaml:"max_context_tokens"`
	MaxToolResponseTokens int `yaml:"max_tool_response_tokens"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CheckpointConfig points at the SQLite checkpoint database. "disabled"
// turns persistence off.
type CheckpointConfig struct {
	DBPath string `yaml:"db_path"`
}

type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envBindings connects YAML fields to the env vars the rest of the system
// reads. Only non-zero YAML values are applied, and never over a set env var.
var envBindings = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"PFAI_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Session.MaxContextTokens) }},
	{"PFAI_MAX_TOOL_RESPONSE_TOKENS", func(c *Config) string { return intStr(c.Session.MaxToolResponseTokens) }},
	{"PFAI_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"PFAI_CHECKPOINT_DB", func(c *Config) string { return c.Checkpoints.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load finds and parses the YAML config, exporting its non-empty values as
// env vars where none are already set. It returns the path it loaded, or ""
// when the system is running env-only.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, b := range envBindings {
		v := b.value(&cfg)
		if v == "" || os.Getenv(b.envKey) != "" {
			continue
		}
		os.Setenv(b.envKey, v)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)
	return path, nil
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit
		}
		return ""
	}
	if p := os.Getenv("PFAI_CONFIG"); p != "" && fileExists(p) {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		if p := filepath.Join(home, ".pfai", "config.yaml"); fileExists(p) {
			return p
		}
	}
	if fileExists("pfai.yaml") {
		return "pfai.yaml"
	}
	return ""
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
