// Package config provides XDG path helpers.
package config

import (
	"os"
	"path/filepath"
)

const appDir = "typestream"

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

// DefaultWordListPath builds the path of a user word list for a language.
func DefaultWordListPath(lang string) string {
	return filepath.Join(XDGConfigHome(), appDir, "wordlists", lang+".txt")
}

// DefaultResultsPath returns the suggested path for a persistent results database.
func DefaultResultsPath() string {
	return filepath.Join(XDGDataHome(), appDir, "results.db")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appDir, "config.toml")
}
