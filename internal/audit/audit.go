// Package audit provides a structured audit logger for CLI command invocations.
// It logs command name, arguments, resolved configuration, and sanitised
// environment state so operators can trace what happened without exposing
// secret values.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// secretMarkers identify env var names whose values must never be logged.
var secretMarkers = []string{"API_KEY", "SECRET", "PUBLIC_KEY", "TOKEN", "PASSWORD"}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []string{
	"MODEL_PROVIDER",
	"MODEL_NAME",
	"MODEL_BASE_URL",
	"MODEL_API_KEY",
	"OLLAMA_HOST",
	"OPENAI_API_KEY",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_ENDPOINT",
	"AZURE_OPENAI_DEPLOYMENT",
	"GOOGLE_API_KEY",
	"ARK_API_KEY",
	"EMBEDDING_PROVIDER",
	"EMBEDDING_MODEL",
	"EMBEDDING_API_KEY",
	"ICRAG_STORE",
	"ICRAG_DATA_DIR",
	"ICRAG_INDEX_DIR",
	"ICRAG_ASSISTANT_ENABLED",
	"QDRANT_HOST",
	"QDRANT_PORT",
	"QDRANT_API_KEY",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"LANGFUSE_PUBLIC_KEY",
	"LANGFUSE_SECRET_KEY",
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, its arguments, the config file source, and
// the sanitised environment.
func LogCommandStart(log *slog.Logger, command string, args []string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.Any("args", sanitiseArgs(args)),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, key := range auditKeys {
		attrs = append(attrs, slog.String(key, SanitiseKey(key, os.Getenv(key))))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// IsSecret reports whether key names a credential.
func IsSecret(key string) bool {
	upper := strings.ToUpper(key)
	for _, m := range secretMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// SanitiseKey returns "set" or "unset" for secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if IsSecret(key) {
		return presence(value)
	}
	return valOrUnset(value)
}

// sanitiseArgs truncates long arguments. Questions are user text and are
// kept short in the audit trail.
func sanitiseArgs(args []string) []string {
	const maxLen = 80
	out := make([]string, len(args))
	for i, a := range args {
		if r := []rune(a); len(r) > maxLen {
			a = string(r[:maxLen]) + "…"
		}
		out[i] = a
	}
	return out
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
