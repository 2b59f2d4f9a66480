package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	AI          AIConfig         `json:"ai"`
	Breaker     BreakerConfig    `json:"breaker"`
	Search      SearchConfig     `json:"search"`
	Jobs        JobsConfig       `json:"jobs"`
	CORSOrigins []string         `json:"cors_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generator     ProviderConfig `json:"generator"`
	Embedder      ProviderConfig `json:"embedder"`
	Timeout       int            `json:"timeout"`
	MaxInputChars int            `json:"max_input_chars"`
}

type BreakerConfig struct {
	FailureThreshold       int `json:"failure_threshold"`
	RecoveryTimeoutSeconds int `json:"recovery_timeout_seconds"`
}

type SearchConfig struct {
	DefaultMinScore    float32 `json:"default_min_score"`
	MaxLimit           int     `json:"max_limit"`
	ExpandSentences    int     `json:"expand_sentences"`
	QuestionWorkers    int     `json:"question_workers"`
	PrereqMaxDepth     int     `json:"prereq_max_depth"`
	ClientSideFallback bool    `json:"client_side_fallback"`
}

type JobsConfig struct {
	EmbeddingCacheCleanupSpec string `json:"embedding_cache_cleanup_spec"`
	EmbeddingCacheMaxAgeDays  int    `json:"embedding_cache_max_age_days"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.AI.Generator.Provider == "" {
		return nil, fmt.Errorf("ai.generator.provider is required")
	}
	if cfg.AI.Embedder.Provider == "" {
		return nil, fmt.Errorf("ai.embedder.provider is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.MaxInputChars == 0 {
		cfg.AI.MaxInputChars = 20000
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.RecoveryTimeoutSeconds == 0 {
		cfg.Breaker.RecoveryTimeoutSeconds = 60
	}
	if cfg.Search.DefaultMinScore == 0 {
		cfg.Search.DefaultMinScore = 0.7
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.ExpandSentences == 0 {
		cfg.Search.ExpandSentences = 5
	}
	if cfg.Search.QuestionWorkers == 0 {
		cfg.Search.QuestionWorkers = 4
	}
	if cfg.Search.PrereqMaxDepth == 0 {
		cfg.Search.PrereqMaxDepth = 3
	}
	if cfg.Jobs.EmbeddingCacheCleanupSpec == "" {
		cfg.Jobs.EmbeddingCacheCleanupSpec = "0 4 * * *"
	}
	if cfg.Jobs.EmbeddingCacheMaxAgeDays == 0 {
		cfg.Jobs.EmbeddingCacheMaxAgeDays = 30
	}
	return &cfg, nil
}
