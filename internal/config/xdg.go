// Package config provides XDG path helpers.
package config

import (
	"os"
	"path/filepath"
)

const appName = "pitchcoach"

// Environment overrides, also read from the .env file in the config dir.
const (
	EnvConfigPath = "PITCHCOACH_CONFIG"
	EnvDataDir    = "PITCHCOACH_DATA_DIR"
)

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// XDGStateHome returns the XDG state home or a default fallback.
func XDGStateHome() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "state")
}

// ConfigDir returns the directory holding config.toml and .env.
func ConfigDir() string {
	return filepath.Join(XDGConfigHome(), appName)
}

// DataDir returns the data directory, honouring PITCHCOACH_DATA_DIR.
func DataDir() string {
	if v := os.Getenv(EnvDataDir); v != "" {
		return v
	}
	return filepath.Join(XDGDataHome(), appName)
}

// DefaultDBPath returns the default path for the SQLite database.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), appName+".db")
}

// DefaultRecoveryDir returns the directory for recovery.json.
func DefaultRecoveryDir() string {
	return DataDir()
}

// DefaultLogPath returns the log file used while a TUI owns the terminal.
func DefaultLogPath() string {
	return filepath.Join(XDGStateHome(), appName, appName+".log")
}

// DefaultConfigPath returns the TOML config path, honouring
// PITCHCOACH_CONFIG.
func DefaultConfigPath() string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return filepath.Join(ConfigDir(), "config.toml")
}
