package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Qdrant     QdrantConfig     `json:"qdrant"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	LLM        LLMConfig        `json:"llm"`
	Extraction ExtractionConfig `json:"extraction"`
	Auth       AuthConfig       `json:"auth"`
	Chunking   ChunkingConfig   `json:"chunking"`
	Indexing   IndexingConfig   `json:"indexing"`
	Cache      CacheConfig      `json:"cache"`
	Prompts    PromptsConfig    `json:"prompts"`
}

type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// QdrantConfig holds the vector index connection settings. Addr is the gRPC
// endpoint.
type QdrantConfig struct {
	Addr       string `json:"addr"`
	Collection string `json:"collection"`
}

// EmbeddingConfig holds settings for the OpenAI-compatible embeddings
// endpoint.
type EmbeddingConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Timeout    int    `json:"timeout"`
	MaxRetries int    `json:"max_retries"`
}

// LLMConfig holds settings for the OpenAI-compatible chat completion
// endpoint.
type LLMConfig struct {
	BaseURL         string  `json:"base_url"`
	APIKey          string  `json:"api_key"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	CompleteTimeout int     `json:"complete_timeout"`
	IdleTimeout     int     `json:"idle_timeout"`
	MaxRetries      int     `json:"max_retries"`
}

// ExtractionConfig holds settings for the PDF text extraction endpoint.
type ExtractionConfig struct {
	BaseURL string `json:"base_url"`
	Timeout int    `json:"timeout"`
}

type AuthConfig struct {
	JWTSecret      string   `json:"jwt_secret"`
	JWTExpiration  int      `json:"jwt_expiration"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
	CharsPerPage int `json:"chars_per_page"`
}

type IndexingConfig struct {
	MaxWorkers int `json:"max_workers"`
}

// CacheConfig holds response cache TTLs in seconds.
type CacheConfig struct {
	DefaultTTL int `json:"default_ttl"`
	SetupTTL   int `json:"setup_ttl"`
}

// PromptsConfig holds the prompt template settings. WarmList names the
// templates preloaded at startup.
type PromptsConfig struct {
	MaxSizeBytes int      `json:"max_size_bytes"`
	CacheTTL     int      `json:"cache_ttl"`
	WarmList     []string `json:"warm_list"`
}

func LoadConfig() (*Config, error) {
	// Missing .env is fine; environment variables may come from elsewhere.
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 120),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "meepleai"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "meepleai"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Qdrant: QdrantConfig{
			Addr:       getEnv("QDRANT_ADDR", "localhost:6334"),
			Collection: getEnv("QDRANT_COLLECTION", "meepleai_documents"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:    getEnv("EMBEDDING_BASE_URL", "https://api.openai.com"),
			APIKey:     getEnv("EMBEDDING_API_KEY", ""),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
			Timeout:    getEnvAsInt("EMBEDDING_TIMEOUT", 30),
			MaxRetries: getEnvAsInt("EMBEDDING_MAX_RETRIES", 3),
		},
		LLM: LLMConfig{
			BaseURL:         getEnv("LLM_BASE_URL", "https://api.openai.com"),
			APIKey:          getEnv("LLM_API_KEY", ""),
			Model:           getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:       getEnvAsInt("LLM_MAX_TOKENS", 1024),
			CompleteTimeout: getEnvAsInt("LLM_COMPLETE_TIMEOUT", 60),
			IdleTimeout:     getEnvAsInt("LLM_STREAM_IDLE_TIMEOUT", 30),
			MaxRetries:      getEnvAsInt("LLM_MAX_RETRIES", 3),
		},
		Extraction: ExtractionConfig{
			BaseURL: getEnv("EXTRACTION_BASE_URL", "http://localhost:8090"),
			Timeout: getEnvAsInt("EXTRACTION_TIMEOUT", 120),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			JWTExpiration:  getEnvAsInt("JWT_EXPIRATION", 3600),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Chunking: ChunkingConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 512),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 50),
			CharsPerPage: getEnvAsInt("CHARS_PER_PAGE", 3000),
		},
		Indexing: IndexingConfig{
			MaxWorkers: getEnvAsInt("INDEXER_MAX_WORKERS", 4),
		},
		Cache: CacheConfig{
			DefaultTTL: getEnvAsInt("CACHE_DEFAULT_TTL", 86400),
			SetupTTL:   getEnvAsInt("CACHE_SETUP_TTL", 86400),
		},
		Prompts: PromptsConfig{
			MaxSizeBytes: getEnvAsInt("PROMPT_MAX_SIZE_BYTES", 16384),
			CacheTTL:     getEnvAsInt("CACHE_PROMPT_TTL", 3600),
			WarmList:     getEnvAsSlice("PROMPT_WARM_LIST", []string{"qa-default", "explain-default", "setup-default"}),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func validateConfig(config *Config) error {
	if config.Database.Password == "" {
		return fmt.Errorf("database password is required (DB_PASSWORD)")
	}

	if config.Auth.JWTSecret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT secret must be changed from default value (JWT_SECRET)")
	}

	if config.Qdrant.Addr == "" {
		return fmt.Errorf("qdrant address is required (QDRANT_ADDR)")
	}

	if config.Chunking.ChunkOverlap >= config.Chunking.ChunkSize {
		return fmt.Errorf("chunk overlap must be smaller than chunk size")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
