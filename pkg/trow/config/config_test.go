package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/trow/admission"
	"github.com/wuxler/ruasec/pkg/trow/config"
)

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
registry_proxies:
  registries:
    - alias: dockerhub
      host: registry-1.docker.io
image_validation:
  default: Deny
  allow: ["quay.io/"]
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset fields keep the default")
	assert.Equal(t, "sqlite", cfg.Index.Driver)
	require.Len(t, cfg.RegistryProxies.Registries, 1)
	assert.Equal(t, "dockerhub", cfg.RegistryProxies.Registries[0].Alias)
	assert.False(t, cfg.RegistryProxies.Offline, "unset fields keep the default")

	require.NotNil(t, cfg.ImageValidation)
	policy := cfg.ImageValidation.ToPolicy()
	assert.Equal(t, admission.Deny, policy.Default)
	assert.Equal(t, []string{"quay.io/"}, policy.Allow)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
