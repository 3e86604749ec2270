package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.DB.Vector.Backend)
	assert.Equal(t, 1536, cfg.DB.Vector.Dimensions)
	assert.Equal(t, "cosine", cfg.DB.Vector.Metric)
	assert.Equal(t, 300, cfg.Resources.DocBudgetSec)
	assert.Equal(t, 30, cfg.Resources.LLMTimeoutSec)
	assert.Equal(t, 0.92, cfg.Triage.SimilarityThreshold)
	assert.Equal(t, "./vault", cfg.Vault.RootDir)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	contents := []byte(`
db:
  vector:
    backend: qdrant
    dimensions: 768
resources:
  max_workers: 8
`)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.DB.Vector.Backend)
	assert.Equal(t, 768, cfg.DB.Vector.Dimensions)
	assert.Equal(t, 8, cfg.Resources.MaxWorkers)
	// untouched fields still get their defaults
	assert.Equal(t, "cosine", cfg.DB.Vector.Metric)
}

func TestEnvOverridesTakePriorityOverFile(t *testing.T) {
	t.Setenv("MAX_WORKERS", "16")
	t.Setenv("VAULT_ROOT", "/tmp/myvault")

	path := t.TempDir() + "/config.yaml"
	contents := []byte("resources:\n  max_workers: 8\nvault:\n  root_dir: /tmp/filevault\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Resources.MaxWorkers)
	assert.Equal(t, "/tmp/myvault", cfg.Vault.RootDir)
}

func TestSetProviderKeyAddsOrUpdates(t *testing.T) {
	cfg := Config{LLMChain: []LLMProviderConfig{{Name: "openai", APIKey: "old"}}}
	setProviderKey(&cfg, "openai", "new")
	require.Len(t, cfg.LLMChain, 1)
	assert.Equal(t, "new", cfg.LLMChain[0].APIKey)

	setProviderKey(&cfg, "anthropic", "key2")
	require.Len(t, cfg.LLMChain, 2)
	assert.Equal(t, "anthropic", cfg.LLMChain[1].Name)
}
