package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"resumerag/internal/domain/retrieval"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string          `json:"log_level"`
	LogFormat string          `json:"log_format"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	OpenAI    OpenAIConfig    `json:"openai"`
	LLM       LLMConfig       `json:"llm"`
	Cache     CacheConfig     `json:"cache"`
	Retrieval retrieval.Config `json:"retrieval"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// DatabaseConfig 简历登记库。URL 为空时简历登记关闭，
// 其余功能不受影响。
type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type LLMConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type CacheConfig struct {
	EmbeddingCapacity int `json:"embedding_capacity"`
	AnswerCapacity    int `json:"answer_capacity"`
	AnswerTTLSeconds  int `json:"answer_ttl_seconds"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 600,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   1000,
		},
		Cache: CacheConfig{
			EmbeddingCapacity: 4096,
			AnswerCapacity:    256,
			AnswerTTLSeconds:  3600,
		},
		Retrieval: *retrieval.DefaultConfig(),
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)

	applyString("LLM_MODEL", &c.LLM.Model)
	applyFloat64("LLM_TEMPERATURE", &c.LLM.Temperature)
	applyInt("LLM_MAX_TOKENS", &c.LLM.MaxTokens)

	applyInt("CACHE_EMBEDDING_CAPACITY", &c.Cache.EmbeddingCapacity)
	applyInt("CACHE_ANSWER_CAPACITY", &c.Cache.AnswerCapacity)
	applyInt("CACHE_ANSWER_TTL", &c.Cache.AnswerTTLSeconds)

	// 检索调参
	applyInt("CHUNK_SIZE", &c.Retrieval.ChunkSize)
	applyInt("CHUNK_OVERLAP", &c.Retrieval.ChunkOverlap)
	applyFloat64("VECTOR_WEIGHT", &c.Retrieval.VectorWeight)
	applyFloat64("KEYWORD_WEIGHT", &c.Retrieval.KeywordWeight)
	applyInt("TOP_K", &c.Retrieval.TopK)
	applyInt("CANDIDATE_N", &c.Retrieval.CandidateN)
	applyFloat64("BM25_K1", &c.Retrieval.BM25K1)
	applyFloat64("BM25_B", &c.Retrieval.BM25B)
	applyString("EMBEDDING_MODEL", &c.Retrieval.EmbeddingModel)
	applyInt("EMBEDDING_DIMS", &c.Retrieval.EmbeddingDims)
	applyInt("EMBEDDING_BATCH_SIZE", &c.Retrieval.EmbeddingBatchSize)
	applyInt("EMBED_CONCURRENCY", &c.Retrieval.EmbedConcurrency)
	applyInt("EMBED_MAX_RETRIES", &c.Retrieval.EmbedMaxRetries)
	applyInt("CONTEXT_BUDGET", &c.Retrieval.ContextBudget)
	applyString("SNAPSHOT_PATH", &c.Retrieval.SnapshotPath)
	applyString("RESUME_DIR", &c.Retrieval.ResumeDir)
}

func (c *AppConfig) normalize() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Redis.URL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyFloat64(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}
