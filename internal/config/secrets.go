package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention: when
// envName+"_FILE" is set the secret is read from that path (trimmed),
// otherwise the value of envName is returned. Missing secrets resolve to "".
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// SecretSource names where a secret would be read from ("file", "env" or
// ""), for startup logs that must not print the value.
func SecretSource(envName string) string {
	switch {
	case os.Getenv(envName+"_FILE") != "":
		return "file"
	case os.Getenv(envName) != "":
		return "env"
	default:
		return ""
	}
}

// RequireSecret resolves a secret and fails when it is empty.
func RequireSecret(envName string) (string, error) {
	v, err := ResolveSecret(envName)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("required secret %s is not set (set %s or %s_FILE)", envName, envName, envName)
	}
	return v, nil
}
