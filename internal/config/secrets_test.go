package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestResolveSecret(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		file   string
		want   string
		source string
	}{
		{name: "env only", env: "env-value", want: "env-value", source: "env"},
		{name: "file only", file: "file-value\n", want: "file-value", source: "file"},
		{name: "file wins over env", env: "env-value", file: "  file-value  ", want: "file-value", source: "file"},
		{name: "neither", want: "", source: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const envName = "FLOWGRAPH_TEST_SECRET"
			t.Setenv(envName, tt.env)
			t.Setenv(envName+"_FILE", "")
			if tt.file != "" {
				t.Setenv(envName+"_FILE", writeSecret(t, tt.file))
			}

			got, err := ResolveSecret(envName)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if src := SecretSource(envName); src != tt.source {
				t.Errorf("source = %q, want %q", src, tt.source)
			}
		})
	}
}

func TestResolveSecretMissingFile(t *testing.T) {
	t.Setenv("FLOWGRAPH_TEST_MISSING_FILE", filepath.Join(t.TempDir(), "nope"))
	if _, err := ResolveSecret("FLOWGRAPH_TEST_MISSING"); err == nil {
		t.Fatal("expected error for unreadable secret file")
	}
}

func TestRequireSecret(t *testing.T) {
	t.Setenv("FLOWGRAPH_TEST_REQUIRED", "")
	t.Setenv("FLOWGRAPH_TEST_REQUIRED_FILE", "")
	if _, err := RequireSecret("FLOWGRAPH_TEST_REQUIRED"); err == nil {
		t.Fatal("expected error for empty required secret")
	}

	t.Setenv("FLOWGRAPH_TEST_REQUIRED", "set")
	if v, err := RequireSecret("FLOWGRAPH_TEST_REQUIRED"); err != nil || v != "set" {
		t.Errorf("got %q, %v; want set, nil", v, err)
	}
}
