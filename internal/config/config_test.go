package config_test

import (
	"os"
	"testing"

	"github.com/momo-mem/momo/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("MOMO_HOST")
	cfg := config.Load()
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoad_CanOverrideHost(t *testing.T) {
	t.Setenv("MOMO_HOST", "0.0.0.0")
	cfg := config.Load()
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoad_EmbeddingDefaults(t *testing.T) {
	_ = os.Unsetenv("MOMO_EMBEDDING_DIMENSIONS")
	cfg := config.Load()
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, "ollama/nomic-embed-text", cfg.Embedding.Model)
}

func TestLoad_APIKeysParsedFromCSV(t *testing.T) {
	t.Setenv("MOMO_API_KEYS", "key1, key2 ,key3")
	cfg := config.Load()
	assert.Equal(t, []string{"key1", "key2", "key3"}, cfg.Server.APIKeys)
}

func TestLoad_InferenceDisabledByDefault(t *testing.T) {
	_ = os.Unsetenv("MOMO_ENABLE_INFERENCES")
	cfg := config.Load()
	assert.False(t, cfg.Inference.Enabled)
}

func TestLoad_BoolParsingAcceptsYesNo(t *testing.T) {
	t.Setenv("MOMO_ENABLE_INFERENCES", "yes")
	cfg := config.Load()
	assert.True(t, cfg.Inference.Enabled)
}
