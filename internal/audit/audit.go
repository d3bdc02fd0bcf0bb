// Package audit records one structured log line per CLI command invocation:
// the command, the config file it resolved, and the operational environment.
// Secret values are reduced to set/unset before they reach the log.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditedEnv is the ordered set of env vars included in every command-start
// entry. Keys marked secret log only their presence.
var auditedEnv = []struct {
	key    string
	secret bool
}{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"AWS_REGION", false},
	{"BEDROCK_MODEL_ID", false},
	{"PFAI_API_KEY", true},
	{"PFAI_CHECKPOINT_DB", false},
	{"PFAI_MAX_CONTEXT_TOKENS", false},
	{"PFAI_MAX_TOOL_RESPONSE_TOKENS", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secretKeys answers SanitiseKey lookups, including keys that are not part
// of the per-command entry (AWS credentials read by the SDK).
var secretKeys = func() map[string]bool {
	m := map[string]bool{
		"AWS_SECRET_ACCESS_KEY": true,
		"AWS_SESSION_TOKEN":     true,
	}
	for _, e := range auditedEnv {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits the audit entry for a starting CLI command.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, e := range auditedEnv {
		val := os.Getenv(e.key)
		if e.secret {
			attrs = append(attrs, slog.String(e.key, presence(val)))
		} else {
			attrs = append(attrs, slog.String(e.key, valOrUnset(val)))
		}
	}
	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey renders an env value safely for logging: secret keys collapse
// to set/unset, everything else passes through.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath replaces the home directory prefix with "~" and maps an
// empty path to "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
