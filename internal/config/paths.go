package config

import (
	"os"
	"path/filepath"
)

const (
	appName        = "graphsync"
	configFileName = "config.toml"
)

// DefaultConfigDir returns the per-user graphsync config directory:
// $XDG_CONFIG_HOME/graphsync (or ~/.config/graphsync) on Linux,
// ~/Library/Application Support/graphsync on macOS and %AppData%\graphsync
// on Windows. Empty when no home directory can be determined, as for
// service accounts running serve; such setups pass --config or
// GRAPHSYNC_CONFIG.
func DefaultConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(base, appName)
}

// DefaultConfigPath returns the config file used when neither --config nor
// GRAPHSYNC_CONFIG is given, or "" if there is no config directory.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
