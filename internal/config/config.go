package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRemote   = "remote"
)

// EditorConfig is the service configuration loaded from flowgraph.yaml.
type EditorConfig struct {
	Version int `yaml:"version"`
	Service struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	} `yaml:"service"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Storage struct {
		Driver string `yaml:"driver"`
		// DSN is used for sqlite; postgres reads the PG* environment.
		DSN string `yaml:"dsn"`
	} `yaml:"storage"`
	Remote struct {
		BaseURL   string        `yaml:"base_url"`
		APIKeyEnv string        `yaml:"api_key_env"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"remote"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		URL         string `yaml:"url"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Reconcile struct {
		MaxConcurrency int `yaml:"max_concurrency"`
	} `yaml:"reconcile"`
}

// Port returns the configured HTTP port, defaulting to 8080 if not set.
func (c *EditorConfig) Port() int {
	if c.Service.Port == 0 {
		return 8080
	}
	return c.Service.Port
}

// ServiceName returns the service name used in logs and client ids.
func (c *EditorConfig) ServiceName() string {
	if c.Service.Name == "" {
		return "flowgraph"
	}
	return c.Service.Name
}

// StorageDriver returns the storage driver, defaulting to memory.
func (c *EditorConfig) StorageDriver() string {
	if c.Storage.Driver == "" {
		return DriverMemory
	}
	return c.Storage.Driver
}

// RemoteTimeout returns the remote API timeout, defaulting to 10s.
func (c *EditorConfig) RemoteTimeout() time.Duration {
	if c.Remote.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Remote.Timeout
}

// RemoteAPIKey resolves the API key from the configured env var (or its
// *_FILE variant).
func (c *EditorConfig) RemoteAPIKey() (string, error) {
	env := c.Remote.APIKeyEnv
	if env == "" {
		env = "TRIGLIT_API_KEY"
	}
	return ResolveSecret(env)
}

// MQTTTopicPrefix returns the event topic prefix.
func (c *EditorConfig) MQTTTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "flowgraph"
	}
	return c.MQTT.TopicPrefix
}

// MaxConcurrency returns the reconciler's in-flight call limit, 0 meaning
// unbounded.
func (c *EditorConfig) MaxConcurrency() int {
	if c.Reconcile.MaxConcurrency < 0 {
		return 0
	}
	return c.Reconcile.MaxConcurrency
}

func LoadEditorConfig(path string) (*EditorConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EditorConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported flowgraph.yaml version: %d", cfg.Version)
	}

	switch cfg.StorageDriver() {
	case DriverMemory, DriverSQLite, DriverPostgres:
	case DriverRemote:
		if cfg.Remote.BaseURL == "" {
			return nil, fmt.Errorf("storage driver %q requires remote.base_url", DriverRemote)
		}
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}

	return &cfg, nil
}

// LoadEnv loads .env style files into the environment without overriding
// variables already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}
