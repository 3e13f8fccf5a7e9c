package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	CORSOrigins    []string `yaml:"cors_origins"`
}

// SessionConfig controls session lifetime and where uploads are spooled.
type SessionConfig struct {
	TTLMinutes                int    `yaml:"ttl_minutes"`
	SweepIntervalSecs         int    `yaml:"sweep_interval_secs"`
	TombstoneRetentionMinutes int    `yaml:"tombstone_retention_minutes"`
	SpoolURL                  string `yaml:"spool_url"`
}

func (c SessionConfig) TTL() time.Duration { return time.Duration(c.TTLMinutes) * time.Minute }

func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

func (c SessionConfig) TombstoneRetention() time.Duration {
	return time.Duration(c.TombstoneRetentionMinutes) * time.Minute
}

// ChunkerConfig configures how page fragments are merged into chunks.
type ChunkerConfig struct {
	MaxChars     int `yaml:"max_chars"`
	MinChars     int `yaml:"min_chars"`
	OverlapChars int `yaml:"overlap_chars"`
}

// OpenAIConfig holds connection settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string        `yaml:"type"`
	Dimension   int           `yaml:"dimension"`
	Concurrency int           `yaml:"concurrency"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
}

// RetrievalConfig configures query-time ranking.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// GeneratorConfig selects the answer generator.
type GeneratorConfig struct {
	Type        string        `yaml:"type"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
}

func (c GeneratorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string   `yaml:"level"`
	Output []string `yaml:"output"`
	File   string   `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Generator GeneratorConfig `yaml:"generator"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/resumerag/config.yaml.
// If neither exists, it writes defaults to ~/.config/resumerag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "resumerag", "config.yaml"), nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 1 << 20
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 30
	}
	if cfg.Session.SweepIntervalSecs == 0 {
		cfg.Session.SweepIntervalSecs = 60
	}
	if cfg.Session.TombstoneRetentionMinutes == 0 {
		cfg.Session.TombstoneRetentionMinutes = 24 * 60
	}
	if cfg.Chunker.MaxChars == 0 {
		cfg.Chunker.MaxChars = 500
	}
	if cfg.Chunker.MinChars == 0 {
		cfg.Chunker.MinChars = 50
	}
	if cfg.Chunker.OverlapChars == 0 {
		cfg.Chunker.OverlapChars = 50
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 && cfg.Embedder.Type == "hashing" {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 8
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 30
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if len(cfg.Logging.Output) == 0 {
		cfg.Logging.Output = []string{"console"}
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
}
