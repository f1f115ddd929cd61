package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the matchagent service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Providers ProvidersConfig `yaml:"providers"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Agent     AgentConfig     `yaml:"agent"`
	Weekly    WeeklyConfig    `yaml:"weekly"`
	Notify    NotifyConfig    `yaml:"notify"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. BatchKeys are the
// trusted-caller credentials required to trigger the weekly batch.
type AuthConfig struct {
	APIKeys   []string `yaml:"api_keys"`
	BatchKeys []string `yaml:"batch_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// ProvidersConfig holds external AI provider settings.
type ProvidersConfig struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// LLMConfig holds the text-understanding provider settings.
type LLMConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// RankingConfig holds score composition weights. Tunable, not a contract.
type RankingConfig struct {
	VectorWeight     float64 `yaml:"vector_weight"`
	PreferenceWeight float64 `yaml:"preference_weight"`
	FilterBonus      float64 `yaml:"filter_bonus"`
}

// AgentConfig holds per-user learning settings.
type AgentConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	HistoryLimit int     `yaml:"history_limit"`
	RetrievalK   int     `yaml:"retrieval_k"`
}

// WeeklyConfig holds batch orchestration settings.
type WeeklyConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Timezone    string `yaml:"timezone"`
	ActiveDays  int    `yaml:"active_days"`
	ExpiryHours int    `yaml:"expiry_hours"`
}

// NotifyConfig holds push notification settings.
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Region   string `yaml:"region"`
	TopicARN string `yaml:"topic_arn"`
}

// Load reads configuration from a YAML file by environment name
// (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting
// to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Interactive pipeline latency budget is enforced by callers (~30s);
		// the write timeout just has to sit above it.
		c.HTTP.WriteTimeoutSec = 35
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "matchagent:"
	}
	if c.Providers.LLM.TimeoutSec <= 0 {
		c.Providers.LLM.TimeoutSec = 15
	}
	if c.Providers.Embedding.Dimensions <= 0 {
		c.Providers.Embedding.Dimensions = 1536
	}
	if c.Ranking.VectorWeight <= 0 {
		c.Ranking.VectorWeight = 0.6
	}
	if c.Ranking.PreferenceWeight <= 0 {
		c.Ranking.PreferenceWeight = 0.3
	}
	if c.Ranking.FilterBonus <= 0 {
		c.Ranking.FilterBonus = 0.1
	}
	if c.Agent.LearningRate <= 0 {
		c.Agent.LearningRate = 0.1
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 20
	}
	if c.Agent.RetrievalK <= 0 {
		c.Agent.RetrievalK = 50
	}
	if c.Weekly.Concurrency <= 0 {
		c.Weekly.Concurrency = 10
	}
	if c.Weekly.Timezone == "" {
		c.Weekly.Timezone = "UTC"
	}
	if c.Weekly.ActiveDays <= 0 {
		c.Weekly.ActiveDays = 14
	}
	if c.Weekly.ExpiryHours <= 0 {
		c.Weekly.ExpiryHours = 48
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if _, err := LoadTimezone(c.Weekly.Timezone); err != nil {
		return fmt.Errorf("weekly.timezone: %w", err)
	}
	sum := c.Ranking.VectorWeight + c.Ranking.PreferenceWeight + c.Ranking.FilterBonus
	if sum <= 0 {
		return fmt.Errorf("ranking weights must sum to a positive value")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
