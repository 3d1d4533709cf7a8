package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/agri-assist/internal/config"
)

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	old := configPath
	t.Cleanup(func() { configPath = old })
	configPath = filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := loadConfig(sourcesCmd)
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.Retrieval.Backend)
}

func TestNewChainSkipsUnusableProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{
		{ID: "groq", Type: "groq", APIKey: "gsk-test"},
		{ID: "pplx", Type: "perplexity"},
		{ID: "odd", Type: "carrier-pigeon", APIKey: "k"},
	}
	cfg.Generation.Chain = []string{"pplx", "groq", "odd", "ghost"}

	chain := newChain(cfg, zap.NewNop())
	provs := chain.Providers()
	require.Len(t, provs, 1)
	assert.Equal(t, "groq", provs[0].ID())
}

func TestNewAppOffline(t *testing.T) {
	cfg := config.Default()
	cfg.Realtime.Enabled = false

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.workflows)
	assert.NotNil(t, a.router)
	assert.False(t, a.chain.Available())
}

func TestNewAppRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Retrieval.Backend = "elastic"

	_, err := newApp(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported retrieval backend")
}
