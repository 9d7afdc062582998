package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoOverrides(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8443", cfg.TLSListenAddr)
	assert.Equal(t, "./data", cfg.StorageDir)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TENANT_ID", "tenant-9")
	t.Setenv("TLS_LISTEN_ADDR", ":9443")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "tenant-9", cfg.TenantID)
	assert.Equal(t, ":9443", cfg.TLSListenAddr)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"EDGE_CONFIG_FILE", "TENANT_ID", "TLS_LISTEN_ADDR"} {
		orig, ok := os.LookupEnv(key)
		os.Unsetenv(key)
		if ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		}
	}
}
