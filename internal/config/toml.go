// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Server   ServerConfig   `toml:"server"`
	Practice PracticeConfig `toml:"practice"`
}

// ServerConfig maps settings of the serve command.
type ServerConfig struct {
	Addr         *string        `toml:"addr"`
	SessionTTL   *time.Duration `toml:"session_ttl"`
	IdleTimeout  *time.Duration `toml:"idle_timeout"`
	ResultsDB    *string        `toml:"results_db"`
	LogLevel     *string        `toml:"log_level"`
	MinWords     *int           `toml:"min_words"`
	MaxWords     *int           `toml:"max_words"`
	DefaultWords *int           `toml:"default_words"`
	WordList     *string        `toml:"wordlist"`
	Lang         *string        `toml:"lang"`
	CapsPct      *float64       `toml:"caps"`
	PunctPct     *float64       `toml:"punct"`
	PunctSet     *string        `toml:"punct_set"`
	OTelEndpoint *string        `toml:"otel_endpoint"`
	OTelEnabled  *bool          `toml:"otel_enabled"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	Server      *string `toml:"server"`
	Words       *int    `toml:"words"`
	MaxAttempts *int    `toml:"max-attempts"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
