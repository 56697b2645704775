// Package config implements TOML configuration loading and validation for
// graphsync. It supports a four-layer override chain (defaults -> config
// file -> environment -> CLI flags).
package config

import (
	"strings"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	App          AppConfig          `toml:"app"`
	Server       ServerConfig       `toml:"server"`
	Subscription SubscriptionConfig `toml:"subscription"`
	Renewal      RenewalConfig      `toml:"renewal"`
	Graph        GraphConfig        `toml:"graph"`
	View         ViewConfig         `toml:"view"`
	Logging      LoggingConfig      `toml:"logging"`
}

// AppConfig holds the Entra ID app registration used for client
// credentials.
type AppConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// ServerConfig controls the webhook listener. PublicURL is the externally
// reachable base (for example an ngrok tunnel) Graph posts notifications to.
type ServerConfig struct {
	ListenAddr  string `toml:"listen_addr"`
	PublicURL   string `toml:"public_url"`
	WebhookPath string `toml:"webhook_path"`
}

// SubscriptionConfig describes the subscription created by /subscribe.
type SubscriptionConfig struct {
	Resource    string `toml:"resource"`
	ChangeType  string `toml:"change_type"`
	Lifetime    string `toml:"lifetime"`
	MaxLifetime string `toml:"max_lifetime"`
	ClientState string `toml:"client_state"`
}

// RenewalConfig controls the renewal scheduler.
type RenewalConfig struct {
	InitialDelay  string `toml:"initial_delay"`
	CheckSchedule string `toml:"check_schedule"`
	Window        string `toml:"window"`
	Extension     string `toml:"extension"`
}

// GraphConfig controls the Graph API client.
type GraphConfig struct {
	BaseURL           string   `toml:"base_url"`
	Select            []string `toml:"select"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           string   `toml:"timeout"`
}

// ViewConfig controls the local directory view. An empty DBPath keeps the
// view in memory.
type ViewConfig struct {
	DBPath string `toml:"db_path"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	ListenAddr *string // --listen flag
	PublicURL  *string // --public-url flag
}

// NotificationURL is the URL registered with Graph for notifications.
func (c *Config) NotificationURL() string {
	return strings.TrimSuffix(c.Server.PublicURL, "/") + c.Server.WebhookPath
}

// LifetimeDuration returns the parsed subscription lifetime.
func (s *SubscriptionConfig) LifetimeDuration() time.Duration {
	return mustDuration(s.Lifetime)
}

// MaxLifetimeDuration returns the parsed lifetime cap.
func (s *SubscriptionConfig) MaxLifetimeDuration() time.Duration {
	return mustDuration(s.MaxLifetime)
}

// InitialDelayDuration returns the parsed delay before the first check.
func (r *RenewalConfig) InitialDelayDuration() time.Duration {
	return mustDuration(r.InitialDelay)
}

// WindowDuration returns the parsed renewal window.
func (r *RenewalConfig) WindowDuration() time.Duration {
	return mustDuration(r.Window)
}

// ExtensionDuration returns the parsed renewal extension.
func (r *RenewalConfig) ExtensionDuration() time.Duration {
	return mustDuration(r.Extension)
}

// TimeoutDuration returns the parsed HTTP client timeout.
func (g *GraphConfig) TimeoutDuration() time.Duration {
	return mustDuration(g.Timeout)
}

// mustDuration parses a duration already checked by Validate. Invalid
// values yield zero.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
