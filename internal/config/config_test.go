package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Empty(t, cfg.App.TenantID)
	assert.Empty(t, cfg.App.ClientSecret)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "/webhook", cfg.Server.WebhookPath)
	assert.Empty(t, cfg.Server.PublicURL)

	assert.Equal(t, "/users", cfg.Subscription.Resource)
	assert.Equal(t, "updated", cfg.Subscription.ChangeType)
	assert.Equal(t, 5*time.Minute, cfg.Subscription.LifetimeDuration())
	assert.Equal(t, 41760*time.Minute, cfg.Subscription.MaxLifetimeDuration())
	assert.Empty(t, cfg.Subscription.ClientState)

	assert.Equal(t, 5*time.Second, cfg.Renewal.InitialDelayDuration())
	assert.Equal(t, "@every 15s", cfg.Renewal.CheckSchedule)
	assert.Equal(t, 2*time.Minute, cfg.Renewal.WindowDuration())
	assert.Equal(t, 5*time.Minute, cfg.Renewal.ExtensionDuration())

	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.Graph.BaseURL)
	assert.Equal(t, []string{"displayName", "givenName", "surname", "mail"}, cfg.Graph.Select)
	assert.Zero(t, cfg.Graph.RequestsPerSecond)
	assert.Equal(t, 30*time.Second, cfg.Graph.TimeoutDuration())

	assert.Empty(t, cfg.View.DBPath)

	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestDefaultConfig_SelectIsCopied(t *testing.T) {
	a := DefaultConfig()
	a.Graph.Select[0] = "mutated"

	assert.Equal(t, "displayName", DefaultConfig().Graph.Select[0])
}

func TestNotificationURL(t *testing.T) {
	tests := []struct {
		publicURL string
		path      string
		want      string
	}{
		{"https://abc.ngrok.io", "/webhook", "https://abc.ngrok.io/webhook"},
		{"https://abc.ngrok.io/", "/webhook", "https://abc.ngrok.io/webhook"},
		{"https://host/base", "/api/notifications", "https://host/base/api/notifications"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server.PublicURL = tt.publicURL
			cfg.Server.WebhookPath = tt.path

			assert.Equal(t, tt.want, cfg.NotificationURL())
		})
	}
}

func TestMustDuration_InvalidIsZero(t *testing.T) {
	assert.Zero(t, mustDuration("soon"))
	assert.Equal(t, time.Minute, mustDuration("1m"))
}
