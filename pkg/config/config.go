// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tabflow/tabflow/pkg/errors"
)

// Config holds all TabFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Transform TransformConfig `yaml:"transform"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TransformConfig controls the record transform.
type TransformConfig struct {
	// Workers is the number of concurrent record workers per batch.
	// 0 or 1 keeps processing sequential.
	Workers int `yaml:"workers"`

	// Fields overrides the wire schema column names. Empty means the
	// clickstream default {prev, curr, type, n}.
	Fields []string `yaml:"fields"`

	// Delimiter overrides the input field delimiter. Empty means tab.
	Delimiter string `yaml:"delimiter"`
}

// ServerConfig for the HTTP invocation endpoint.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// StorageConfig names the destination the delivery stream writes to.
// The bucket is a deployment precondition checked at batch entry; the
// transform path never reads from it.
type StorageConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig for the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Quiet bool   `yaml:"quiet"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Transform: TransformConfig{
			Workers: 1,
		},
		Server: ServerConfig{
			Port:         8080,
			Host:         "localhost",
			MaxBodyBytes: 16 << 20, // Firehose batches are capped well below this
		},
		Storage: StorageConfig{
			Region: "us-east-1",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks deployment preconditions.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return errors.MissingBucket("DATA_BUCKET_NAME")
	}
	if c.Transform.Workers < 0 {
		return errors.New(errors.CodeInvalidConfig, "transform workers must not be negative")
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	paths := m.getConfigPaths()
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but surface errors for existing files
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/tabflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".tabflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".tabflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidConfig, "failed to parse config file %s", path)
	}

	// Merge non-zero values
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Transform
	if src.Transform.Workers != 0 {
		m.config.Transform.Workers = src.Transform.Workers
	}
	if len(src.Transform.Fields) > 0 {
		m.config.Transform.Fields = src.Transform.Fields
	}
	if src.Transform.Delimiter != "" {
		m.config.Transform.Delimiter = src.Transform.Delimiter
	}

	// Server
	if src.Server.Port != 0 {
		m.config.Server.Port = src.Server.Port
	}
	if src.Server.Host != "" {
		m.config.Server.Host = src.Server.Host
	}
	if src.Server.MaxBodyBytes != 0 {
		m.config.Server.MaxBodyBytes = src.Server.MaxBodyBytes
	}

	// Storage
	if src.Storage.Bucket != "" {
		m.config.Storage.Bucket = src.Storage.Bucket
	}
	if src.Storage.Region != "" {
		m.config.Storage.Region = src.Storage.Region
	}
	if src.Storage.Endpoint != "" {
		m.config.Storage.Endpoint = src.Storage.Endpoint
	}
	if src.Storage.UsePathStyle {
		m.config.Storage.UsePathStyle = true
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}

	// Logging
	if src.Logging.Level != "" {
		m.config.Logging.Level = src.Logging.Level
	}
	if src.Logging.Quiet {
		m.config.Logging.Quiet = true
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	// DATA_BUCKET_NAME is the deployment contract for the destination bucket.
	if v := os.Getenv("DATA_BUCKET_NAME"); v != "" {
		m.config.Storage.Bucket = v
	}

	// AWS_REGION
	if v := os.Getenv("AWS_REGION"); v != "" {
		m.config.Storage.Region = v
	}

	// TABFLOW_WORKERS
	if v := os.Getenv("TABFLOW_WORKERS"); v != "" {
		var workers int
		if _, err := fmt.Sscanf(v, "%d", &workers); err == nil {
			m.config.Transform.Workers = workers
		}
	}

	// TABFLOW_PORT
	if v := os.Getenv("TABFLOW_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			m.config.Server.Port = port
		}
	}

	// TABFLOW_HOST
	if v := os.Getenv("TABFLOW_HOST"); v != "" {
		m.config.Server.Host = v
	}

	// TABFLOW_LOG_LEVEL
	if v := os.Getenv("TABFLOW_LOG_LEVEL"); v != "" {
		m.config.Logging.Level = v
	}

	// TABFLOW_OTLP_ENDPOINT
	if v := os.Getenv("TABFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".tabflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
