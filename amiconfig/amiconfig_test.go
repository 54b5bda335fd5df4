package amiconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ami.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: admin\nsecret: s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 5038, cfg.Port)
	assert.Equal(t, "admin", cfg.Username)
	assert.Equal(t, "s", cfg.Secret)
	assert.Equal(t, 1, cfg.ActionTimeoutSeconds)
}

func TestLoad_MissingUsernameFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ami.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 10.0.0.1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_Validate_DebugLevelRange(t *testing.T) {
	cfg := &Config{Host: "h", Username: "u", DebugLevel: 11}
	require.Error(t, cfg.Validate())

	cfg.DebugLevel = 5
	require.NoError(t, cfg.Validate())
}
