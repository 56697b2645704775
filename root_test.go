package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/graphsync/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests either
// set globals after newRootCmd() returns or let Cobra parse flags via
// SetArgs + Execute.

// clearEnv keeps the host's GRAPHSYNC_* variables out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		config.EnvConfig, config.EnvTenantID, config.EnvClientID,
		config.EnvClientSecret, config.EnvPublicURL,
	} {
		t.Setenv(name, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func saveGlobals(t *testing.T) {
	t.Helper()

	oldCfg, oldVerbose, oldQuiet := resolvedCfg, flagVerbose, flagQuiet

	t.Cleanup(func() {
		resolvedCfg = oldCfg
		flagVerbose = oldVerbose
		flagQuiet = oldQuiet
	})
}

func TestBuildLogger_Levels(t *testing.T) {
	saveGlobals(t)

	ctx := context.Background()

	tests := []struct {
		name     string
		cfgLevel string
		verbose  bool
		quiet    bool
		enabled  slog.Level
		disabled slog.Level
	}{
		{"default info", "info", false, false, slog.LevelInfo, slog.LevelDebug},
		{"config warn", "warn", false, false, slog.LevelWarn, slog.LevelInfo},
		{"verbose wins", "error", true, false, slog.LevelDebug, slog.LevelDebug - 1},
		{"quiet wins", "debug", false, true, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Logging.LogLevel = tt.cfgLevel
			resolvedCfg = cfg
			flagVerbose = tt.verbose
			flagQuiet = tt.quiet

			logger := buildLogger(&bytes.Buffer{})
			assert.True(t, logger.Handler().Enabled(ctx, tt.enabled))
			assert.False(t, logger.Handler().Enabled(ctx, tt.disabled))
		})
	}
}

func TestBuildLogger_Format(t *testing.T) {
	saveGlobals(t)

	flagVerbose, flagQuiet = false, false

	cfg := config.DefaultConfig()
	cfg.Logging.LogFormat = "json"
	resolvedCfg = cfg

	var buf bytes.Buffer
	buildLogger(&buf).Info("hello", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])

	cfg.Logging.LogFormat = "text"
	buf.Reset()
	buildLogger(&buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestUseJSONLogs(t *testing.T) {
	assert.True(t, useJSONLogs("json", os.Stderr))
	assert.False(t, useJSONLogs("text", &bytes.Buffer{}))
	assert.True(t, useJSONLogs("auto", &bytes.Buffer{}), "non-terminal writers get JSON")

	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, useJSONLogs("auto", f), "regular files are not terminals")
}

func TestRootCmd_LoadsConfigWithOverrides(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)
	t.Setenv(config.EnvClientSecret, "from-env")

	path := writeConfigFile(t, `
[server]
listen_addr = "127.0.0.1:7000"
public_url = "https://file.example.com"
`)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--public-url", "https://cli.example.com", "--json", "config", "show"})
	require.NoError(t, cmd.Execute())

	require.NotNil(t, resolvedCfg)
	assert.Equal(t, "127.0.0.1:7000", resolvedCfg.Server.ListenAddr)
	assert.Equal(t, "https://cli.example.com", resolvedCfg.Server.PublicURL)
	assert.Equal(t, "from-env", resolvedCfg.App.ClientSecret)
}

func TestRootCmd_InvalidConfigFails(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	path := writeConfigFile(t, "[renewal]\nwindw = \"2m\"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
	assert.Contains(t, err.Error(), "window")
}

func TestServeCmd_RequiresPublicURL(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.toml"), "serve"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public_url")
}

func TestSyncCmd_RequiresCredentials(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.toml"), "sync"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")
}

func TestSubscribeCmd_CallsServer(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		assert.Equal(t, "/subscribe", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":        "sub-1",
			"expiresAt": time.Now().Add(5 * time.Minute),
		})
	}))
	defer srv.Close()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.toml"), "subscribe", "--server", srv.URL})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, int32(1), hits.Load())
}

func TestSubscribeCmd_ServerError(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "subscription failed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.toml"), "subscribe", "--server", srv.URL})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
