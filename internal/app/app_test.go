package app

import (
	"context"
	"testing"
	"time"

	"github.com/momo-mem/momo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Database.URL = ":memory:"
	cfg.LLM.Provider = "local/test"
	cfg.Embedding.Model = "local/test"
	cfg.Embedding.Dimensions = 8
	cfg.Inference.Enabled = false
	cfg.Lifecycle.ForgettingCheckInterval = 50 * time.Millisecond
	return cfg
}

func TestNew_WiresEveryEngineComponent(t *testing.T) {
	a, err := New(testConfig(), false, false)
	require.NoError(t, err)
	defer a.store.Close()

	assert.NotNil(t, a.Ingestor)
	assert.NotNil(t, a.Memories)
	assert.NotNil(t, a.Search)
	assert.NotNil(t, a.Forgetting)
	assert.NotNil(t, a.Inference)
	assert.NotNil(t, a.Profiles)
	assert.NotNil(t, a.Graph)
	assert.Equal(t, a.store, a.Store())
}

func TestApp_StartAndShutdownLifecycle(t *testing.T) {
	a, err := New(testConfig(), false, false)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	// Starting twice must fail instead of silently double-scheduling.
	err = a.Start(ctx)
	assert.Error(t, err)

	require.NoError(t, a.Shutdown(ctx))

	// Shutting down twice must fail instead of double-closing the store.
	err = a.Shutdown(ctx)
	assert.Error(t, err)
}

func TestCheckEmbeddingFingerprint_ForcedRebuildSucceedsWhenFingerprintMatches(t *testing.T) {
	cfg := testConfig()
	a, err := New(cfg, false, false)
	require.NoError(t, err)
	defer a.store.Close()

	storedModel, ok, err := a.store.GetSystemMetadata(context.Background(), "embedding_model")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg.Embedding.Model, storedModel)

	// A forced rebuild must succeed even when the fingerprint already matches.
	require.NoError(t, a.checkEmbeddingFingerprint(true, false))
}

func TestCheckEmbeddingFingerprint_AbortsOnMismatchWithoutFlagOrTerminal(t *testing.T) {
	cfg := testConfig()
	a, err := New(cfg, false, false)
	require.NoError(t, err)
	defer a.store.Close()

	// Simulate a later restart with a different embedding model and no
	// --rebuild-embeddings flag, in a non-interactive (e.g. systemd) process:
	// startup must abort rather than silently clear every embedding.
	a.cfg.Embedding.Model = "local/a-different-model"
	err = a.checkEmbeddingFingerprint(false, false)
	require.Error(t, err)
}
