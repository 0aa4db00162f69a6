package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int               `json:"port"`
	JWTSecret   string            `json:"jwt_secret"`
	JWTTTLHours int               `json:"jwt_ttl_hours"`
	CORSOrigins []string          `json:"cors_origins"`
	Database    DatabaseConfig    `json:"database"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	FileStore   FileStoreConfig   `json:"file_store"`
	AI          AIConfig          `json:"ai"`
	Embed       EmbedConfig       `json:"embed"`
	RAG         RAGConfig         `json:"rag"`
	VectorIndex VectorIndexConfig `json:"vector_index"`
	Jobs        JobsConfig        `json:"jobs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`

	// MaxOpenConns caps the pool; zero keeps the driver default.
	MaxOpenConns int `json:"max_open_conns"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProviderConfig names a registered provider and carries its raw settings.
type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	ProviderConfig
	Fallbacks     []ProviderConfig `json:"fallbacks"`
	Timeout       int              `json:"timeout"`
	MaxInputChars int              `json:"max_input_chars"`
}

type EmbedConfig struct {
	ProviderConfig
	Dimension     int    `json:"dimension"`
	TaskType      string `json:"task_type"`
	Timeout       int    `json:"timeout"`
	CacheSize     int    `json:"cache_size"`
	CacheTTLHours int    `json:"cache_ttl_hours"`
	DBCache       bool   `json:"db_cache"`
}

type RAGConfig struct {
	ChunkSize        int   `json:"chunk_size"`
	EmbedConcurrency int   `json:"embed_concurrency"`
	IngestTimeout    int   `json:"ingest_timeout"`
	RetrieveTimeout  int   `json:"retrieve_timeout"`
	MaxUploadMB      int64 `json:"max_upload_mb"`
	// AskIntervalMS is the minimum gap between two model calls from the same
	// user on the same route.
	AskIntervalMS int `json:"ask_interval_ms"`
}

type VectorIndexConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type JobsConfig struct {
	EmbeddingCacheCleanup string `json:"embedding_cache_cleanup"`
	EmbeddingCacheMaxDays int    `json:"embedding_cache_max_days"`
	NamespacePurge        string `json:"namespace_purge"`
}

// LoadEnv reads a dotenv file when it exists. Variables already set in the
// process environment win.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// yamlToJSON lets yaml files reuse the json tags, including the ones on
// structs owned by other packages.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func applyEnv(cfg *Config) {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET_KEY")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		cfg.Database.DSN = os.Getenv("DATABASE_URL")
	}
	cfg.AI.Data = withEnvAPIKey(cfg.AI.Provider, cfg.AI.Data)
	for i := range cfg.AI.Fallbacks {
		cfg.AI.Fallbacks[i].Data = withEnvAPIKey(cfg.AI.Fallbacks[i].Provider, cfg.AI.Fallbacks[i].Data)
	}
	cfg.Embed.Data = withEnvAPIKey(cfg.Embed.Provider, cfg.Embed.Data)
	if strings.EqualFold(cfg.VectorIndex.Type, "qdrant") {
		cfg.VectorIndex.Data = withEnvValue(cfg.VectorIndex.Data, "api_key", os.Getenv("QDRANT_API_KEY"))
	}
}

var providerKeyEnv = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

func withEnvAPIKey(provider string, data interface{}) interface{} {
	env := providerKeyEnv[strings.ToLower(strings.TrimSpace(provider))]
	if env == "" {
		return data
	}
	return withEnvValue(data, "api_key", os.Getenv(env))
}

func withEnvValue(data interface{}, key, value string) interface{} {
	if value == "" {
		return data
	}
	m, ok := data.(map[string]interface{})
	if data != nil && !ok {
		return data
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	if existing, _ := m[key].(string); strings.TrimSpace(existing) != "" {
		return m
	}
	m[key] = value
	return m
}

func applyDefaults(cfg *Config) error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 1
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if strings.EqualFold(cfg.FileStore.Type, "local") && cfg.FileStore.Data == nil {
		cfg.FileStore.Data = map[string]interface{}{"dir": "uploads"}
	}
	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.Embed.Provider == "" {
		cfg.Embed.Provider = "local"
	}
	if cfg.Embed.Timeout <= 0 {
		cfg.Embed.Timeout = 30
	}
	if cfg.Embed.CacheSize <= 0 {
		cfg.Embed.CacheSize = 10000
	}
	if cfg.Embed.CacheTTLHours <= 0 {
		cfg.Embed.CacheTTLHours = 24
	}
	if cfg.Embed.Dimension <= 0 {
		cfg.Embed.Dimension = 384
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = 500
	}
	if cfg.RAG.EmbedConcurrency <= 0 {
		cfg.RAG.EmbedConcurrency = 4
	}
	if cfg.RAG.IngestTimeout <= 0 {
		cfg.RAG.IngestTimeout = 120
	}
	if cfg.RAG.RetrieveTimeout <= 0 {
		cfg.RAG.RetrieveTimeout = 15
	}
	if cfg.RAG.MaxUploadMB <= 0 {
		cfg.RAG.MaxUploadMB = 20
	}
	if cfg.RAG.AskIntervalMS < 0 {
		cfg.RAG.AskIntervalMS = 0
	}
	if cfg.VectorIndex.Type == "" {
		cfg.VectorIndex.Type = "pgvector"
	}
	switch strings.ToLower(cfg.VectorIndex.Type) {
	case "pgvector", "memory", "hnsw", "qdrant":
	default:
		return fmt.Errorf("vector_index.type must be pgvector, memory, hnsw or qdrant")
	}
	if cfg.Jobs.EmbeddingCacheCleanup == "" {
		cfg.Jobs.EmbeddingCacheCleanup = "30 3 * * *"
	}
	if cfg.Jobs.EmbeddingCacheMaxDays <= 0 {
		cfg.Jobs.EmbeddingCacheMaxDays = 30
	}
	if cfg.Jobs.NamespacePurge == "" {
		cfg.Jobs.NamespacePurge = "*/10 * * * *"
	}
	return nil
}
