package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvTenantID, "tenant")
	t.Setenv(EnvClientID, "client")
	t.Setenv(EnvClientSecret, "secret")
	t.Setenv(EnvPublicURL, "https://example.com")

	overrides := ReadEnvOverrides()
	assert.Equal(t, EnvOverrides{
		ConfigPath:   "/custom/config.toml",
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		PublicURL:    "https://example.com",
	}, overrides)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	for _, name := range []string{EnvConfig, EnvTenantID, EnvClientID, EnvClientSecret, EnvPublicURL} {
		t.Setenv(name, "")
	}

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestEnvOverrides_ApplyKeepsUnsetFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.App.TenantID = "from-file"
	cfg.App.ClientID = "client-from-file"

	EnvOverrides{TenantID: "from-env"}.apply(cfg)

	assert.Equal(t, "from-env", cfg.App.TenantID)
	assert.Equal(t, "client-from-file", cfg.App.ClientID)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "GRAPHSYNC_CONFIG", EnvConfig)
	assert.Equal(t, "GRAPHSYNC_CLIENT_SECRET", EnvClientSecret)
}
