package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validation range constants.
const (
	minGraphTimeout = 1 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass. Credentials are
// not required here; see RequireCredentials.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateSubscription(&cfg.Subscription)...)
	errs = append(errs, validateRenewal(&cfg.Renewal)...)
	errs = append(errs, validateGraph(&cfg.Graph)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// RequireCredentials reports missing app registration settings. Commands
// that talk to Graph call it after Resolve.
func RequireCredentials(cfg *Config) error {
	var errs []error

	if cfg.App.TenantID == "" {
		errs = append(errs, fmt.Errorf("tenant_id: required (set [app] tenant_id or %s)", EnvTenantID))
	}

	if cfg.App.ClientID == "" {
		errs = append(errs, fmt.Errorf("client_id: required (set [app] client_id or %s)", EnvClientID))
	}

	if cfg.App.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("client_secret: required (set [app] client_secret or %s)", EnvClientSecret))
	}

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if s.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr: must not be empty"))
	}

	if s.PublicURL != "" {
		u, err := url.Parse(s.PublicURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, fmt.Errorf("public_url: must be an absolute http(s) URL, got %q", s.PublicURL))
		}
	}

	if !strings.HasPrefix(s.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("webhook_path: must start with /, got %q", s.WebhookPath))
	}

	return errs
}

func validateSubscription(s *SubscriptionConfig) []error {
	var errs []error

	if s.Resource == "" {
		errs = append(errs, errors.New("resource: must not be empty"))
	}

	errs = append(errs, validateChangeType(s.ChangeType)...)
	errs = append(errs, validateDurationMin("lifetime", s.Lifetime, time.Minute)...)
	errs = append(errs, validateDurationMin("max_lifetime", s.MaxLifetime, time.Minute)...)

	return errs
}

var validChangeTypes = map[string]bool{
	"created": true,
	"updated": true,
	"deleted": true,
}

// validateChangeType accepts a comma-separated list of Graph change types.
func validateChangeType(ct string) []error {
	if ct == "" {
		return []error{errors.New("change_type: must not be empty")}
	}

	var errs []error

	for _, part := range strings.Split(ct, ",") {
		if !validChangeTypes[strings.TrimSpace(part)] {
			errs = append(errs, fmt.Errorf("change_type: must be created, updated or deleted; got %q", part))
		}
	}

	return errs
}

func validateRenewal(r *RenewalConfig) []error {
	var errs []error

	errs = append(errs, validateDurationNonNeg("initial_delay", r.InitialDelay)...)
	errs = append(errs, validateDurationNonNeg("window", r.Window)...)
	errs = append(errs, validateDurationMin("extension", r.Extension, time.Minute)...)

	if w, x := mustDuration(r.Window), mustDuration(r.Extension); x > 0 && x <= w {
		errs = append(errs, fmt.Errorf("extension: must be longer than window (%s), got %s", w, x))
	}

	if _, err := cron.ParseStandard(r.CheckSchedule); err != nil {
		errs = append(errs, fmt.Errorf("check_schedule: invalid schedule %q: %w", r.CheckSchedule, err))
	}

	return errs
}

func validateGraph(g *GraphConfig) []error {
	var errs []error

	u, err := url.Parse(g.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url: must be an absolute URL, got %q", g.BaseURL))
	}

	if len(g.Select) == 0 {
		errs = append(errs, errors.New("select: must list at least one property"))
	}

	for _, field := range g.Select {
		if strings.TrimSpace(field) == "" || strings.Contains(field, ",") {
			errs = append(errs, fmt.Errorf("select: invalid property name %q", field))
		}
	}

	if g.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second: must be >= 0, got %g", g.RequestsPerSecond))
	}

	errs = append(errs, validateDurationMin("timeout", g.Timeout, minGraphTimeout)...)

	return errs
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	return validateDurationMin(field, value, 0)
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
