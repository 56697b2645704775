package config

import "github.com/tonimelisma/graphsync/internal/subscription"

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultListenAddr        = ":8080"
	defaultWebhookPath       = "/webhook"
	defaultResource          = "/users"
	defaultChangeType        = "updated"
	defaultLifetime          = "5m"
	defaultMaxLifetime       = "696h" // 41760 minutes, the Graph limit for users
	defaultInitialDelay      = "5s"
	defaultWindow            = "2m"
	defaultExtension         = "5m"
	defaultGraphBaseURL      = "https://graph.microsoft.com/v1.0"
	defaultRequestsPerSecond = 0
	defaultGraphTimeout      = "30s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
)

// defaultSelect is the $select list for the users delta query.
var defaultSelect = []string{"displayName", "givenName", "surname", "mail"}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  defaultListenAddr,
			WebhookPath: defaultWebhookPath,
		},
		Subscription: SubscriptionConfig{
			Resource:    defaultResource,
			ChangeType:  defaultChangeType,
			Lifetime:    defaultLifetime,
			MaxLifetime: defaultMaxLifetime,
		},
		Renewal: RenewalConfig{
			InitialDelay:  defaultInitialDelay,
			CheckSchedule: subscription.DefaultCheckSchedule,
			Window:        defaultWindow,
			Extension:     defaultExtension,
		},
		Graph: GraphConfig{
			BaseURL:           defaultGraphBaseURL,
			Select:            append([]string(nil), defaultSelect...),
			RequestsPerSecond: defaultRequestsPerSecond,
			Timeout:           defaultGraphTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
