package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "GRAPHSYNC_CONFIG"
	EnvTenantID     = "GRAPHSYNC_TENANT_ID"
	EnvClientID     = "GRAPHSYNC_CLIENT_ID"
	EnvClientSecret = "GRAPHSYNC_CLIENT_SECRET"
	EnvPublicURL    = "GRAPHSYNC_PUBLIC_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // GRAPHSYNC_CONFIG: override config file path
	TenantID     string // GRAPHSYNC_TENANT_ID
	ClientID     string // GRAPHSYNC_CLIENT_ID
	ClientSecret string // GRAPHSYNC_CLIENT_SECRET: keeps the secret out of the file
	PublicURL    string // GRAPHSYNC_PUBLIC_URL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		TenantID:     os.Getenv(EnvTenantID),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		PublicURL:    os.Getenv(EnvPublicURL),
	}
}

// apply copies every non-empty override onto cfg.
func (e EnvOverrides) apply(cfg *Config) {
	setIfNonEmpty(&cfg.App.TenantID, e.TenantID)
	setIfNonEmpty(&cfg.App.ClientID, e.ClientID)
	setIfNonEmpty(&cfg.App.ClientSecret, e.ClientSecret)
	setIfNonEmpty(&cfg.Server.PublicURL, e.PublicURL)
}

func setIfNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
