// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	LLM       LLMConfig                 `mapstructure:"llm"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig holds settings for the language-model capability.
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ProviderConfig holds the settings common to every retrieval provider.
// HTTP-backed providers use BaseURL/APIKey/Engine; store-backed providers
// (catalog, places) read their connection from the database section.
type ProviderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Engine     string `mapstructure:"engine"`
	Priority   int    `mapstructure:"priority"`
	MaxResults int    `mapstructure:"max_results"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds, per-call deadline
}

// PipelineConfig holds the policy constants for the orchestrated stages.
// These are deliberately configuration, not hard-wired logic.
type PipelineConfig struct {
	RequestTimeout      int     `mapstructure:"request_timeout"`  // milliseconds, end-to-end
	ProviderTimeout     int     `mapstructure:"provider_timeout"` // milliseconds, default per-call deadline
	DeepMode            bool    `mapstructure:"deep_mode"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	TopK                int     `mapstructure:"top_k"`
	LocalScoreWeight    float64 `mapstructure:"local_score_weight"`
	PriorityWeight      float64 `mapstructure:"priority_weight"`
	TokenBudget         int     `mapstructure:"token_budget"`
	CacheTTL            int     `mapstructure:"cache_ttl"` // seconds
	MaxTurnHistory      int     `mapstructure:"max_turn_history"`
}

// RequestDeadline returns the end-to-end deadline as a duration.
func (p PipelineConfig) RequestDeadline() time.Duration {
	return time.Duration(p.RequestTimeout) * time.Millisecond
}

// ProviderDeadline returns the default per-call deadline for providers
// that do not configure their own.
func (p PipelineConfig) ProviderDeadline() time.Duration {
	return time.Duration(p.ProviderTimeout) * time.Millisecond
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
