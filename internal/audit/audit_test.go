package audit

import (
	"os"
	"testing"
)

func Test_SanitiseKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key   string
		value string
		want  string
	}{
		{"OPENAI_API_KEY", "sk-abc123", "set"},
		{"OPENAI_API_KEY", "", "unset"},
		{"AWS_SECRET_ACCESS_KEY", "wJalrXUtnFEMI", "set"},
		{"MODEL_PROVIDER", "azure", "azure"},
		{"MODEL_PROVIDER", "", "unset"},
		{"PFAI_CHECKPOINT_DB", "/tmp/ck.db", "/tmp/ck.db"},
	}
	for _, tc := range cases {
		if got := SanitiseKey(tc.key, tc.value); got != tc.want {
			t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func Test_SanitiseConfigPath(t *testing.T) {
	t.Parallel()

	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("empty path: expected none, got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("plain path: got %q", got)
	}
	if home, err := os.UserHomeDir(); err == nil {
		if got := sanitiseConfigPath(home + "/.pfai/config.yaml"); got != "~/.pfai/config.yaml" {
			t.Errorf("home path: expected ~/.pfai/config.yaml, got %q", got)
		}
	}
}
