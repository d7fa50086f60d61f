// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored when not present
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "answer-engine"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 10000
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}

	if cfg.Pipeline.RequestTimeout == 0 {
		cfg.Pipeline.RequestTimeout = 30000
	}
	if cfg.Pipeline.ProviderTimeout == 0 {
		cfg.Pipeline.ProviderTimeout = 3000
	}
	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.6
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 20
	}
	if cfg.Pipeline.LocalScoreWeight == 0 {
		cfg.Pipeline.LocalScoreWeight = 0.8
	}
	if cfg.Pipeline.PriorityWeight == 0 {
		cfg.Pipeline.PriorityWeight = 0.2
	}
	if cfg.Pipeline.TokenBudget == 0 {
		cfg.Pipeline.TokenBudget = 6000
	}
	if cfg.Pipeline.CacheTTL == 0 {
		cfg.Pipeline.CacheTTL = 300
	}
	if cfg.Pipeline.MaxTurnHistory == 0 {
		cfg.Pipeline.MaxTurnHistory = 20
	}

	for name, pc := range cfg.Providers {
		if pc.Timeout == 0 {
			pc.Timeout = 3000
		}
		if pc.MaxResults == 0 {
			pc.MaxResults = 10
		}
		if pc.Priority == 0 {
			pc.Priority = 1
		}
		cfg.Providers[name] = pc
	}
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("LLM_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SERPAPI_KEY"); v != "" {
		for name, pc := range cfg.Providers {
			if pc.APIKey == "" && pc.BaseURL != "" {
				pc.APIKey = v
				cfg.Providers[name] = pc
			}
		}
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" && cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.LLM.APIKey == "" && cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm: api_key or base_url must be set")
	}
	if cfg.Pipeline.LocalScoreWeight < 0 || cfg.Pipeline.PriorityWeight < 0 {
		return fmt.Errorf("pipeline: rerank weights must be non-negative")
	}
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch name {
		case "catalog":
			if len(cfg.Database.Elasticsearch.Addresses) == 0 {
				return fmt.Errorf("provider %q enabled but elasticsearch addresses missing", name)
			}
		case "places":
			if cfg.Database.Postgres.Host == "" {
				return fmt.Errorf("provider %q enabled but postgres host missing", name)
			}
		default:
			if pc.BaseURL == "" {
				return fmt.Errorf("provider %q enabled but base_url missing", name)
			}
		}
	}
	return nil
}
