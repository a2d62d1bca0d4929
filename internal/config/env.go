package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds server overrides read from TYPESTREAM_* variables.
// Unset variables leave their field nil.
type EnvConfig struct {
	Addr         *string        `env:"TYPESTREAM_ADDR"`
	SessionTTL   *time.Duration `env:"TYPESTREAM_SESSION_TTL"`
	IdleTimeout  *time.Duration `env:"TYPESTREAM_IDLE_TIMEOUT"`
	ResultsDB    *string        `env:"TYPESTREAM_RESULTS_DB"`
	LogLevel     *string        `env:"TYPESTREAM_LOG_LEVEL"`
	WordList     *string        `env:"TYPESTREAM_WORDLIST"`
	Lang         *string        `env:"TYPESTREAM_LANG"`
	OTelEndpoint *string        `env:"TYPESTREAM_OTEL_ENDPOINT"`
	OTelEnabled  *bool          `env:"TYPESTREAM_OTEL_ENABLED"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv parses the TYPESTREAM_* variables.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := ParseEnv(&cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Overlay copies every set environment value over the file settings.
func (e EnvConfig) Overlay(s ServerConfig) ServerConfig {
	if e.Addr != nil {
		s.Addr = e.Addr
	}
	if e.SessionTTL != nil {
		s.SessionTTL = e.SessionTTL
	}
	if e.IdleTimeout != nil {
		s.IdleTimeout = e.IdleTimeout
	}
	if e.ResultsDB != nil {
		s.ResultsDB = e.ResultsDB
	}
	if e.LogLevel != nil {
		s.LogLevel = e.LogLevel
	}
	if e.WordList != nil {
		s.WordList = e.WordList
	}
	if e.Lang != nil {
		s.Lang = e.Lang
	}
	if e.OTelEndpoint != nil {
		s.OTelEndpoint = e.OTelEndpoint
	}
	if e.OTelEnabled != nil {
		s.OTelEnabled = e.OTelEnabled
	}
	return s
}
