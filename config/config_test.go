package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "test-password")
	t.Setenv("JWT_SECRET", "test-jwt-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddress())
	assert.Equal(t, "localhost:6334", cfg.Qdrant.Addr)
	assert.Equal(t, "meepleai_documents", cfg.Qdrant.Collection)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 4, cfg.Indexing.MaxWorkers)
	assert.Equal(t, 86400, cfg.Cache.DefaultTTL)
	assert.Equal(t, []string{"qa-default", "explain-default", "setup-default"}, cfg.Prompts.WarmList)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("QDRANT_ADDR", "qdrant.internal:6334")
	t.Setenv("CHUNK_SIZE", "1024")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("PROMPT_WARM_LIST", "qa-default,custom-prompt")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qdrant.internal:6334", cfg.Qdrant.Addr)
	assert.Equal(t, 1024, cfg.Chunking.ChunkSize)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, []string{"qa-default", "custom-prompt"}, cfg.Prompts.WarmList)
}

func TestLoadConfigRequiresDatabasePassword(t *testing.T) {
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("JWT_SECRET", "test-jwt-secret")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestLoadConfigRejectsDefaultJWTSecret(t *testing.T) {
	t.Setenv("DB_PASSWORD", "test-password")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadConfigRejectsOverlapLargerThanChunk(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestDatabaseDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "meeple_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	dsn := cfg.GetDatabaseDSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "dbname=meeple_test")
	assert.Contains(t, dsn, "password=test-password")
}
