package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secrets in rendered output.
const redacted = "********"

// RenderEffective writes the resolved configuration as TOML-like text to
// w. Secrets are redacted.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	ew.printf("[app]\n")
	ew.printf("tenant_id      = %q\n", cfg.App.TenantID)
	ew.printf("client_id      = %q\n", cfg.App.ClientID)
	ew.printf("client_secret  = %q\n\n", redact(cfg.App.ClientSecret))

	ew.printf("[server]\n")
	ew.printf("listen_addr    = %q\n", cfg.Server.ListenAddr)
	ew.printf("public_url     = %q\n", cfg.Server.PublicURL)
	ew.printf("webhook_path   = %q\n\n", cfg.Server.WebhookPath)

	ew.printf("[subscription]\n")
	ew.printf("resource       = %q\n", cfg.Subscription.Resource)
	ew.printf("change_type    = %q\n", cfg.Subscription.ChangeType)
	ew.printf("lifetime       = %q\n", cfg.Subscription.Lifetime)
	ew.printf("max_lifetime   = %q\n", cfg.Subscription.MaxLifetime)
	ew.printf("client_state   = %q\n\n", redact(cfg.Subscription.ClientState))

	ew.printf("[renewal]\n")
	ew.printf("initial_delay  = %q\n", cfg.Renewal.InitialDelay)
	ew.printf("check_schedule = %q\n", cfg.Renewal.CheckSchedule)
	ew.printf("window         = %q\n", cfg.Renewal.Window)
	ew.printf("extension      = %q\n\n", cfg.Renewal.Extension)

	ew.printf("[graph]\n")
	ew.printf("base_url       = %q\n", cfg.Graph.BaseURL)
	ew.printf("select         = %s\n", quoteList(cfg.Graph.Select))
	ew.printf("requests_per_second = %g\n", cfg.Graph.RequestsPerSecond)
	ew.printf("timeout        = %q\n\n", cfg.Graph.Timeout)

	ew.printf("[view]\n")
	ew.printf("db_path        = %q\n\n", cfg.View.DBPath)

	ew.printf("[logging]\n")
	ew.printf("log_level      = %q\n", cfg.Logging.LogLevel)
	ew.printf("log_format     = %q\n", cfg.Logging.LogFormat)

	return ew.err
}

func redact(s string) string {
	if s == "" {
		return ""
	}

	return redacted
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return "[" + strings.Join(quoted, ", ") + "]"
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
