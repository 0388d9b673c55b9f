// Package infra handles configuration loading and infrastructure wiring.
package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for dbcopilot.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	ResultLog ResultLogConfig `yaml:"result_log"`
}

// ServerConfig controls the HTTP listener and console behaviour.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`          // default ":5000"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default 15s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default 15s

	// BatchSize is the number of rows per streamed console batch.
	BatchSize int `yaml:"batch_size"` // default 100

	// CancelOnDisconnect raises the cancel flag for all in-flight
	// queries of a console session when its socket drops. Off by
	// default: started work runs to completion server-side.
	CancelOnDisconnect bool `yaml:"cancel_on_disconnect"`
}

// StorageConfig points at the local SQLite files for app data.
type StorageConfig struct {
	HistoryPath string `yaml:"history_path"` // default "data/app.db"
	SchemaPath  string `yaml:"schema_path"`  // default: same file as history
}

// LLMConfig selects and configures the SQL generation backend.
type LLMConfig struct {
	Provider string        `yaml:"provider"` // "openai" | "ollama"; default "ollama"
	APIKey   string        `yaml:"api_key"`  // override via DBCOPILOT_LLM_API_KEY
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"` // default 60s
}

// ResultLogConfig controls publication of query outcomes to Redis.
type ResultLogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"` // host:port
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"` // state key lifetime, seconds; default 3600
}

// LoadConfig reads and validates the YAML config at path, applying
// defaults. An empty path yields the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	// Defaults
	cfg.Server.Addr = ":5000"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.BatchSize = 100
	cfg.Storage.HistoryPath = "data/app.db"
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Timeout = 60 * time.Second
	cfg.ResultLog.TTL = 3600

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if cfg.Storage.SchemaPath == "" {
		cfg.Storage.SchemaPath = cfg.Storage.HistoryPath
	}

	// API key: config file takes precedence; env var is the fallback
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("DBCOPILOT_LLM_API_KEY")
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("config: llm.api_key is required for openai (or set DBCOPILOT_LLM_API_KEY)")
	}

	if cfg.Server.BatchSize <= 0 {
		return nil, fmt.Errorf("config: server.batch_size must be positive")
	}
	if cfg.ResultLog.Enabled && cfg.ResultLog.Addr == "" {
		return nil, fmt.Errorf("config: result_log.addr is required when result_log.enabled")
	}
	return cfg, nil
}
