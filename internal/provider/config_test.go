package provider

import (
	"strings"
	"testing"
)

func validConfig(backend Backend) Config {
	switch backend {
	case BackendOllama:
		return Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434", Model: "qwen2.5"}}
	case BackendOpenAI:
		return Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o-mini"}}
	case BackendAzure:
		return Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     "key",
			Endpoint:   "https://pfai.openai.azure.com",
			Deployment: "gpt-4o",
			APIVersion: "2025-04-01-preview",
		}}
	case BackendBedrock:
		return Config{Backend: BackendBedrock, Bedrock: ProviderBedrock{AWSRegion: "eu-west-1", ModelID: "amazon.nova-pro-v1:0"}}
	case BackendGemini:
		return Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-2.0-flash"}}
	}
	return Config{Backend: backend}
}

func Test_ConfigValidate_AcceptsCompleteBackends(t *testing.T) {
	t.Parallel()

	for _, b := range []Backend{BackendOllama, BackendOpenAI, BackendAzure, BackendBedrock, BackendGemini} {
		cfg := validConfig(b)
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() for %s: unexpected error: %v", b, err)
		}
	}
}

func Test_ConfigValidate_RejectsIncompleteBackends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		blank   func(*Config)
		backend Backend
		wantErr string
	}{
		{"ollama model", func(c *Config) { c.Ollama.Model = "" }, BackendOllama, "OLLAMA_MODEL"},
		{"openai api key", func(c *Config) { c.OpenAI.APIKey = "" }, BackendOpenAI, "OPENAI_API_KEY"},
		{"openai model", func(c *Config) { c.OpenAI.Model = "" }, BackendOpenAI, "OPENAI_MODEL"},
		{"azure api key", func(c *Config) { c.AzureOpenAI.APIKey = "" }, BackendAzure, "AZURE_OPENAI_API_KEY"},
		{"azure endpoint", func(c *Config) { c.AzureOpenAI.Endpoint = "" }, BackendAzure, "AZURE_OPENAI_ENDPOINT"},
		{"azure deployment", func(c *Config) { c.AzureOpenAI.Deployment = "" }, BackendAzure, "AZURE_OPENAI_DEPLOYMENT"},
		{"bedrock model id", func(c *Config) { c.Bedrock.ModelID = "" }, BackendBedrock, "BEDROCK_MODEL_ID"},
		{"bedrock region", func(c *Config) { c.Bedrock.AWSRegion = "" }, BackendBedrock, "AWS_REGION"},
		{"gemini api key", func(c *Config) { c.Gemini.APIKey = "" }, BackendGemini, "GOOGLE_API_KEY"},
		{"gemini model", func(c *Config) { c.Gemini.Model = "" }, BackendGemini, "GEMINI_MODEL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(tc.backend)
			tc.blank(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func Test_ConfigValidate_UnknownBackend(t *testing.T) {
	t.Parallel()

	err := Config{Backend: "mlx"}.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Errorf("Validate() = %v, want unknown backend error", err)
	}
}

func Test_IsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	reasoning := []string{"o1", "o1-preview", "o1-mini", "o3", "o3-mini", "o3-pro", "o4-mini", "O1-PREVIEW", "O3-Mini", "codex", "codex-mini"}
	for _, d := range reasoning {
		if !isAzureReasoningModel(d) {
			t.Errorf("isAzureReasoningModel(%q) = false, want true", d)
		}
	}

	// Prefix match only: "codex" embedded mid-name must not trigger.
	standard := []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-35-turbo", "gpt-5.2-codex", "my-custom-deployment", ""}
	for _, d := range standard {
		if isAzureReasoningModel(d) {
			t.Errorf("isAzureReasoningModel(%q) = true, want false", d)
		}
	}
}
