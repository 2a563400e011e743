package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 50, cfg.Retrieval.ChunkOverlap)
	assert.InDelta(t, 1.0, cfg.Retrieval.HybridSemanticWeight+cfg.Retrieval.HybridBM25Weight, 0.001)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.HybridSemanticWeight = 0.5
	cfg.Retrieval.HybridBM25Weight = 0.2
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOverlapTooLarge(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.ChunkOverlap = cfg.Retrieval.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Retrieval.ChunkSize, cfg.Retrieval.ChunkSize)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("retrieval:\n  top_k_retrieval: 8\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.TopKRetrieval)
}

func TestEnvOverrideTakesPrecedence(t *testing.T) {
	t.Setenv("HELIX_ONBOARDING_TOP_K", "3")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.TopKRetrieval)
}

func TestServiceEndpointResolvedURL(t *testing.T) {
	e := ServiceEndpoint{Host: "localhost", Port: "6334"}
	assert.Equal(t, "localhost:6334", e.ResolvedURL())

	e2 := ServiceEndpoint{URL: "https://vectors.internal"}
	assert.Equal(t, "https://vectors.internal", e2.ResolvedURL())

	e3 := ServiceEndpoint{}
	assert.Equal(t, "", e3.ResolvedURL())
}
