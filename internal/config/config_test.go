package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &ProjectConfig{}, cfg)
}

func TestLoadReadsYml(t *testing.T) {
	dir := t.TempDir()
	data := "model: sonnet\nsandbox: read-only\nmaxConcurrency: 2\nexcludePaths:\n  - vendor/\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conflux.yml"), []byte(data), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sonnet", cfg.Model)
	assert.Equal(t, SandboxReadOnly, cfg.Sandbox)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, []string{"vendor/"}, cfg.ExcludePaths)
}

func TestLoadInvalidYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conflux.yaml"), []byte(":\n\t"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &ProjectConfig{}
	cfg.Normalize()
	assert.Equal(t, SandboxWorkspaceWrite, cfg.Sandbox)
	assert.Equal(t, 4, cfg.MaxConcurrency)
}

func TestSandboxAllowsWrites(t *testing.T) {
	assert.False(t, SandboxReadOnly.AllowsWrites())
	assert.True(t, SandboxWorkspaceWrite.AllowsWrites())
	assert.True(t, SandboxFull.AllowsWrites())
}
